package api

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"

	"cvStudio/internal/database"
	"cvStudio/internal/database/dbtest"
	"cvStudio/internal/entitlement"
	"cvStudio/internal/layout"
	"cvStudio/internal/pdf"
	"cvStudio/internal/prepcache"
	"cvStudio/internal/render"
)

type fakeObjects struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	deleted  []string
	readErr  error
	uploaded []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeObjects) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, contentType string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = b
	s.types[objectName] = contentType
	s.uploaded = append(s.uploaded, objectName)
	return &minio.UploadInfo{Key: objectName, Size: int64(len(b))}, nil
}

func (s *fakeObjects) ReadObject(_ context.Context, objectKey string, _ int64) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, "", s.readErr
	}
	b, ok := s.objects[objectKey]
	if !ok {
		return nil, "", minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return b, s.types[objectKey], nil
}

func (s *fakeObjects) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://minio.test/" + objectKey, nil
}

func (s *fakeObjects) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, prefix)
	return nil
}

type prepCall struct {
	UserID, DocumentID uint
}

type fakePrep struct {
	mu      sync.Mutex
	cleared []prepCall
	values  map[prepcache.Key]string
}

func newFakePrep() *fakePrep {
	return &fakePrep{values: map[prepcache.Key]string{}}
}

func (p *fakePrep) ClearDocument(_ context.Context, userID, documentID uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, prepCall{userID, documentID})
	return nil
}

func (p *fakePrep) Get(_ context.Context, k prepcache.Key) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[k]
	return v, ok, nil
}

func (p *fakePrep) Put(_ context.Context, k prepcache.Key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[k] = value
	return nil
}

func (p *fakePrep) Clear(_ context.Context, userID uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.values {
		if k.UserID == userID {
			delete(p.values, k)
		}
	}
	return nil
}

func (p *fakePrep) clearedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cleared)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (e *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

type fakePDF struct {
	html  string
	pages int
}

func (f *fakePDF) PDF(_ context.Context, htmlContent string) (pdf.Output, error) {
	f.html = htmlContent
	return pdf.Output{Data: []byte("%PDF-1.7 fake"), Pages: layout.Pages{Total: f.pages, Current: 1}}, nil
}

type testEnv struct {
	db      *gorm.DB
	docs    *database.DocumentRepository
	ent     *entitlement.Service
	objects *fakeObjects
	prep    *fakePrep
	tasks   *fakeEnqueuer
	pdf     *fakePDF
	render  *documentRenderer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := dbtest.Open(t)
	objects := newFakeObjects()
	fpdf := &fakePDF{pages: 2}
	return &testEnv{
		db:      db,
		docs:    database.NewDocumentRepository(db),
		ent:     entitlement.NewService(db),
		objects: objects,
		prep:    newFakePrep(),
		tasks:   &fakeEnqueuer{},
		pdf:     fpdf,
		render:  &documentRenderer{renderer: render.MustNew(), photos: objects, pdf: fpdf},
	}
}

func (e *testEnv) cvHandler() *CVHandler {
	return &CVHandler{
		docs:     e.docs,
		ent:      e.ent,
		prep:     e.prep,
		objects:  e.objects,
		enqueuer: e.tasks,
		render:   e.render,
	}
}

// newContext 构造带 userID 与路由参数的测试上下文；userID 为 0 时不注入。
func newContext(method, target string, body []byte, userID uint, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		c.Set("userID", userID)
	}
	c.Params = params
	return c, w
}

func idParam(id uint) gin.Param {
	return gin.Param{Key: "id", Value: strconv.FormatUint(uint64(id), 10)}
}
