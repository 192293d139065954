package database

import (
	"context"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cvStudio/internal/cv"
)

const defaultDocumentTitle = "Untitled CV"

// DocumentRepository 封装 documents 表的读写，所有查询都带 user_id 约束。
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 构造 DocumentRepository。
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Get 返回用户名下的文档；不存在时返回 gorm.ErrRecordNotFound。
func (r *DocumentRepository) Get(ctx context.Context, userID, id uint) (*Document, error) {
	var doc Document
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByID 不做归属校验，仅供内部接口（worker、导出）使用。
func (r *DocumentRepository) GetByID(ctx context.Context, id uint) (*Document, error) {
	var doc Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// List 按更新时间倒序列出用户文档。
func (r *DocumentRepository) List(ctx context.Context, userID uint) ([]Document, error) {
	var docs []Document
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// Create 持久化一份新文档。
func (r *DocumentRepository) Create(ctx context.Context, userID uint, doc cv.Document) (*Document, error) {
	content, err := cv.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	row := Document{
		Title:       documentTitle(doc),
		TemplateKey: doc.Template,
		Content:     datatypes.JSON(content),
		UserID:      userID,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return &row, nil
}

// Update 覆盖文档内容；文档不存在或不属于该用户时返回 gorm.ErrRecordNotFound。
func (r *DocumentRepository) Update(ctx context.Context, userID, id uint, doc cv.Document) error {
	content, err := cv.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	res := r.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"title":        documentTitle(doc),
			"template_key": doc.Template,
			"content":      datatypes.JSON(content),
		})
	if res.Error != nil {
		return fmt.Errorf("update document %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete 软删除文档。
func (r *DocumentRepository) Delete(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&Document{})
	if res.Error != nil {
		return fmt.Errorf("delete document %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetPDF 记录异步生成的 PDF 对象与状态。
func (r *DocumentRepository) SetPDF(ctx context.Context, id uint, objectKey, status string) error {
	return r.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ?", id).
		Updates(map[string]any{"pdf_object": objectKey, "pdf_status": status}).Error
}

// ForUser 返回绑定到某个用户的持久化视图，供编辑会话自动保存使用。
func (r *DocumentRepository) ForUser(userID uint) *UserDocuments {
	return &UserDocuments{repo: r, userID: userID}
}

// UserDocuments 实现编辑会话的 Create/Update 协作接口。
type UserDocuments struct {
	repo   *DocumentRepository
	userID uint
}

func (u *UserDocuments) Create(ctx context.Context, doc cv.Document) (uint, error) {
	row, err := u.repo.Create(ctx, u.userID, doc)
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (u *UserDocuments) Update(ctx context.Context, id uint, doc cv.Document) error {
	return u.repo.Update(ctx, u.userID, id, doc)
}

// Decode 将持久化内容规范化为完整文档。
func (d *Document) Decode() (cv.Document, error) {
	return d.DecodeAs("")
}

// DecodeAs 与 Decode 相同，templateKey 非空时覆盖已保存的模板。
func (d *Document) DecodeAs(templateKey string) (cv.Document, error) {
	return cv.Normalize(d.Content, templateKey)
}

func documentTitle(doc cv.Document) string {
	name := cv.PlainText(doc.Personal.FirstName + " " + doc.Personal.LastName)
	if name == "" {
		return defaultDocumentTitle
	}
	return name
}
