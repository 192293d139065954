package export

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvStudio/internal/entitlement"
)

type stubSaver struct {
	id    uint
	err   error
	calls int
}

func (s *stubSaver) Flush(context.Context) (uint, error) {
	s.calls++
	return s.id, s.err
}

type stubEntitlements struct {
	decision entitlement.Decision
	calls    int
}

func (s *stubEntitlements) Check(_ context.Context, _, _ uint, _ string) (entitlement.Decision, error) {
	s.calls++
	return s.decision, nil
}

type stubCheckout struct {
	calls    int
	template string
}

func (s *stubCheckout) CreateCheckout(_ context.Context, _, _ uint, templateKey string) (string, error) {
	s.calls++
	s.template = templateKey
	return "https://checkout.test/session", nil
}

type stubExporter struct {
	calls int
	err   error
}

func (s *stubExporter) Export(_ context.Context, documentID uint) (Artifact, error) {
	s.calls++
	if s.err != nil {
		return Artifact{}, s.err
	}
	return Artifact{Data: []byte("%PDF-1.7"), ContentType: "application/pdf"}, nil
}

type stubDelivery struct{ calls int }

func (s *stubDelivery) Deliver(_ context.Context, _, documentID uint, _ Artifact) (string, error) {
	s.calls++
	return "https://files.test/cv.pdf", nil
}

type gateFixture struct {
	saver        *stubSaver
	entitlements *stubEntitlements
	checkout     *stubCheckout
	exporter     *stubExporter
	delivery     *stubDelivery
	gate         *Gate
}

func newGateFixture(decision entitlement.Decision) *gateFixture {
	f := &gateFixture{
		saver:        &stubSaver{id: 42},
		entitlements: &stubEntitlements{decision: decision},
		checkout:     &stubCheckout{},
		exporter:     &stubExporter{},
		delivery:     &stubDelivery{},
	}
	f.gate = NewGate(f.entitlements, f.checkout, f.exporter, f.delivery, nil)
	return f
}

func TestGate_RestrictedWithoutEntitlementRedirects(t *testing.T) {
	f := newGateFixture(entitlement.Decision{Restricted: true})

	res, err := f.gate.Export(context.Background(), Request{UserID: 1, TemplateKey: "executive", Saver: f.saver})
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.test/session", res.RedirectURL)
	assert.Empty(t, res.DownloadURL)
	assert.Equal(t, uint(42), res.DocumentID)
	assert.Equal(t, 1, f.saver.calls, "always saves first")
	assert.Equal(t, "executive", f.checkout.template)
	assert.Equal(t, 0, f.exporter.calls, "export endpoint is never called")
	assert.Equal(t, 0, f.delivery.calls)
}

func TestGate_PurchaseAllowsExportRegardlessOfGlobal(t *testing.T) {
	for _, global := range []bool{false, true} {
		f := newGateFixture(entitlement.Decision{Restricted: true, Purchased: true, Global: global})

		res, err := f.gate.Export(context.Background(), Request{UserID: 1, TemplateKey: "creative", Saver: f.saver})
		require.NoError(t, err)
		assert.Equal(t, "https://files.test/cv.pdf", res.DownloadURL)
		assert.Equal(t, 1, f.exporter.calls)
		assert.Equal(t, 0, f.checkout.calls)
	}
}

func TestGate_FreeTemplateExports(t *testing.T) {
	f := newGateFixture(entitlement.Decision{})

	res, err := f.gate.Export(context.Background(), Request{UserID: 1, TemplateKey: "classic", Saver: f.saver})
	require.NoError(t, err)
	assert.NotEmpty(t, res.DownloadURL)
	assert.Equal(t, 0, f.checkout.calls)
}

func TestGate_SaveFailureAbortsBeforePayment(t *testing.T) {
	f := newGateFixture(entitlement.Decision{Restricted: true})
	f.saver.err = errors.New("connection reset")

	_, err := f.gate.Export(context.Background(), Request{UserID: 1, TemplateKey: "executive", Saver: f.saver})
	require.ErrorIs(t, err, ErrSaveFailed)
	assert.Equal(t, 0, f.entitlements.calls)
	assert.Equal(t, 0, f.checkout.calls)
	assert.Equal(t, 0, f.exporter.calls)
}

func TestGate_ServiceErrorSurfaced(t *testing.T) {
	f := newGateFixture(entitlement.Decision{})
	f.exporter.err = &ServiceError{Status: http.StatusUnprocessableEntity, Message: "photo missing"}

	_, err := f.gate.Export(context.Background(), Request{UserID: 1, TemplateKey: "classic", Saver: f.saver})
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "photo missing", svcErr.Message)
	assert.Equal(t, 0, f.delivery.calls)
}

func TestHTTPExporter_PDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/internal/cv/7/export", r.URL.Path)
		assert.Equal(t, "s3cret", r.Header.Get("X-Internal-Secret"))
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set(PageCountHeader, "2")
		_, _ = w.Write([]byte("%PDF-1.7 body"))
	}))
	defer srv.Close()

	art, err := NewHTTPExporter(srv.URL+"/", "s3cret", srv.Client()).Export(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", art.ContentType)
	assert.Equal(t, "%PDF-1.7 body", string(art.Data))
	assert.Equal(t, "cv-7.pdf", art.Filename)
	assert.Equal(t, 2, art.Pages)
}

func TestHTTPExporter_OversizedPDFIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 0123456789abcdef"))
	}))
	defer srv.Close()

	exporter := NewHTTPExporter(srv.URL, "s3cret", srv.Client())
	exporter.maxBytes = 16

	art, err := exporter.Export(context.Background(), 1)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "artifact_too_large", svcErr.Code)
	assert.Empty(t, art.Data)

	// 恰好等于上限时仍是完整产物
	exporter.maxBytes = int64(len("%PDF-1.7 0123456789abcdef"))
	art, err = exporter.Export(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 0123456789abcdef", string(art.Data))
}

func TestHTTPExporter_NonPDFIsStructuredError(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantMessage string
		wantCode    string
	}{
		{"json error", http.StatusPaymentRequired, "application/json", `{"error":"template requires purchase","code":"entitlement_required"}`, "template requires purchase", "entitlement_required"},
		{"json on 200", http.StatusOK, "application/json; charset=utf-8", `{"error":"render failed"}`, "render failed", ""},
		{"plain text", http.StatusBadGateway, "text/plain", "upstream down", "upstream down", ""},
		{"empty body", http.StatusInternalServerError, "", "", "Internal Server Error", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				}
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewHTTPExporter(srv.URL, "s3cret", srv.Client()).Export(context.Background(), 1)
			var svcErr *ServiceError
			require.ErrorAs(t, err, &svcErr)
			assert.Equal(t, tc.status, svcErr.Status)
			assert.Equal(t, tc.wantMessage, svcErr.Message)
			assert.Equal(t, tc.wantCode, svcErr.Code)
		})
	}
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	m.objects[objectName] = b
	return &minio.UploadInfo{Key: objectName}, nil
}

func (m *memoryStore) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://files.test/" + objectKey, nil
}

func TestStorageDelivery(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}}
	url, err := NewStorageDelivery(store, 0).Deliver(context.Background(), 3, 9, Artifact{Data: []byte("%PDF"), ContentType: "application/pdf"})
	require.NoError(t, err)

	require.Len(t, store.objects, 1)
	for key, data := range store.objects {
		assert.Contains(t, key, "exports/3/9/")
		assert.Equal(t, "%PDF", string(data))
		assert.Equal(t, "https://files.test/"+key, url)
	}
}
