package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cvStudio/internal/database"
	"cvStudio/internal/database/dbtest"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	return NewService(db).WithClock(func() time.Time { return fixedNow }), db
}

func createUser(t *testing.T, db *gorm.DB, premiumUntil *time.Time) database.User {
	t.Helper()
	u := database.User{Username: t.Name(), PasswordHash: "x", PremiumUntil: premiumUntil}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func createPurchase(t *testing.T, db *gorm.DB, userID, docID uint, status string, expires *time.Time) {
	t.Helper()
	p := database.Purchase{
		UserID:          userID,
		DocumentID:      docID,
		TemplateKey:     "executive",
		Status:          status,
		ExpiresAt:       expires,
		StripeSessionID: t.Name() + status + time.Now().String(),
	}
	require.NoError(t, db.Create(&p).Error)
}

func ptr(t time.Time) *time.Time { return &t }

func TestCheck_FreeTemplateAlwaysAllowed(t *testing.T) {
	s, db := newService(t)
	u := createUser(t, db, nil)

	d, err := s.Check(context.Background(), u.ID, 1, "classic")
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.False(t, d.Restricted)
}

func TestCheck_RestrictedWithoutEntitlement(t *testing.T) {
	s, db := newService(t)
	u := createUser(t, db, ptr(fixedNow.Add(-time.Hour)))
	createPurchase(t, db, u.ID, 1, database.PurchasePending, nil)
	createPurchase(t, db, u.ID, 1, database.PurchaseFailed, nil)
	createPurchase(t, db, u.ID, 2, database.PurchaseCompleted, nil)

	d, err := s.Check(context.Background(), u.ID, 1, "executive")
	require.NoError(t, err)
	assert.False(t, d.Allowed())
	assert.False(t, d.Expired)
}

func TestCheck_GlobalEntitlement(t *testing.T) {
	s, db := newService(t)
	u := createUser(t, db, ptr(fixedNow.Add(24*time.Hour)))

	d, err := s.Check(context.Background(), u.ID, 0, "creative")
	require.NoError(t, err)
	assert.True(t, d.Global)
	assert.True(t, d.Allowed())
}

func TestCheck_DocumentPurchase(t *testing.T) {
	s, db := newService(t)
	u := createUser(t, db, nil)
	createPurchase(t, db, u.ID, 5, database.PurchaseCompleted, ptr(fixedNow.Add(time.Hour)))

	d, err := s.Check(context.Background(), u.ID, 5, "creative")
	require.NoError(t, err)
	assert.True(t, d.Purchased)
	assert.True(t, d.Allowed())

	paid, err := s.Paid(context.Background(), u.ID, 5)
	require.NoError(t, err)
	assert.True(t, paid)
}

func TestCheckUpdate_ExpiredPurchase(t *testing.T) {
	s, db := newService(t)
	u := createUser(t, db, nil)
	createPurchase(t, db, u.ID, 9, database.PurchaseCompleted, ptr(fixedNow.Add(-time.Minute)))

	err := s.CheckUpdate(context.Background(), u.ID, 9, "executive")
	require.ErrorIs(t, err, ErrExpired)

	// 从未购买：允许保存
	require.NoError(t, s.CheckUpdate(context.Background(), u.ID, 10, "executive"))
	// 免费模板：允许保存
	require.NoError(t, s.CheckUpdate(context.Background(), u.ID, 9, "classic"))

	require.NoError(t, db.Model(&database.User{}).Where("id = ?", u.ID).Update("premium_until", fixedNow.Add(time.Hour)).Error)
	require.NoError(t, s.CheckUpdate(context.Background(), u.ID, 9, "executive"))
}
