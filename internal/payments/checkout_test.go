package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"

	"cvStudio/internal/database"
	"cvStudio/internal/database/dbtest"
)

type stubSessions struct {
	last *stripe.CheckoutSessionParams
	err  error
}

func (s *stubSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.last = params
	if s.err != nil {
		return nil, s.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func newProvider(t *testing.T, sessions *stubSessions) *StripeProvider {
	t.Helper()
	p, err := NewStripeProvider(StripeConfig{
		SuccessURL: "https://app.test/success",
		CancelURL:  "https://app.test/cancel",
		Sessions:   sessions,
	})
	require.NoError(t, err)
	return p
}

func TestStripeProvider_CreateSession(t *testing.T) {
	sessions := &stubSessions{}
	p := newProvider(t, sessions)

	got, err := p.CreateSession(context.Background(), SessionRequest{
		UserID:      3,
		DocumentID:  11,
		TemplateKey: "executive",
		ProductName: "Executive template",
		AmountCents: 499,
		Currency:    "EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", got.ID)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", got.RedirectURL)

	require.NotNil(t, sessions.last)
	assert.Equal(t, "https://app.test/success?session_id={CHECKOUT_SESSION_ID}", *sessions.last.SuccessURL)
	assert.Equal(t, "eur", *sessions.last.LineItems[0].PriceData.Currency)
	assert.Equal(t, int64(499), *sessions.last.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "11", sessions.last.Metadata["document_id"])
}

func TestStripeProvider_RequiresKey(t *testing.T) {
	_, err := NewStripeProvider(StripeConfig{SuccessURL: "a", CancelURL: "b"})
	require.Error(t, err)
}

func TestService_CreateCheckoutRecordsPendingPurchase(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(db, newProvider(t, &stubSessions{}))

	url, err := svc.CreateCheckout(context.Background(), 3, 11, "executive")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", url)

	var p database.Purchase
	require.NoError(t, db.Where("stripe_session_id = ?", "cs_test_1").First(&p).Error)
	assert.Equal(t, database.PurchasePending, p.Status)
	assert.Equal(t, uint(11), p.DocumentID)
	assert.Equal(t, "executive", p.TemplateKey)
}

func TestService_CreateCheckoutErrors(t *testing.T) {
	db := dbtest.Open(t)

	_, err := NewService(db, nil).CreateCheckout(context.Background(), 1, 1, "executive")
	require.ErrorIs(t, err, ErrCheckoutDisabled)

	svc := NewService(db, newProvider(t, &stubSessions{}))
	_, err = svc.CreateCheckout(context.Background(), 1, 1, "classic")
	require.ErrorIs(t, err, ErrNotPurchasable)

	failing := NewService(db, newProvider(t, &stubSessions{err: errors.New("card network down")}))
	_, err = failing.CreateCheckout(context.Background(), 1, 1, "creative")
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&database.Purchase{}).Count(&count).Error)
	assert.Zero(t, count)
}
