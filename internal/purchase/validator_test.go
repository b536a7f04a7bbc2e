package purchase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reaktivstudios/external-purchase-api/internal/catalog"
	"github.com/reaktivstudios/external-purchase-api/internal/directory"
	"github.com/reaktivstudios/external-purchase-api/internal/ledger"
	"github.com/reaktivstudios/external-purchase-api/internal/whitelist"
)

const (
	testKey   = "pk_live_valid"
	testToken = "tok_valid"
)

type validatorFixture struct {
	validator *Validator
	dirStore  *directory.MemoryStore
	catStore  *catalog.MemoryStore
	ledger    *ledger.Ledger
}

func newValidatorFixture(t *testing.T) *validatorFixture {
	t.Helper()

	dirStore := directory.NewMemoryStore()
	dirStore.AddPrincipal(&directory.Principal{
		Email:        "api@example.com",
		PublicKey:    testKey,
		Capabilities: []directory.Capability{directory.CapManagePayments},
	})
	dirStore.AddPrincipal(&directory.Principal{
		Email:     "limited@example.com",
		PublicKey: "pk_live_limited",
	})

	catStore := catalog.NewMemoryStore()
	catStore.Add(&catalog.Product{
		ID: 7, Name: "Plugin A", Type: catalog.TypeDefault,
		Status: catalog.StatusPublished, Price: "25.00",
	})
	catStore.Add(&catalog.Product{
		ID: 8, Name: "Draft Plugin", Type: catalog.TypeDefault,
		Status: catalog.StatusDraft, Price: "5.00",
	})

	led := ledger.New(ledger.NewMemoryStore())
	guard := whitelist.NewGuard(true, []string{"example.com"})

	return &validatorFixture{
		validator: NewValidator(directory.New(dirStore), guard, catalog.New(catStore), led, true),
		dirStore:  dirStore,
		catStore:  catStore,
		ledger:    led,
	}
}

// validParams returns a parameter bag that passes every common check for a
// purchase. Tests knock out individual fields from here.
func validParams() Params {
	return Params{
		TransType: "purchase",
		Key:       testKey,
		Token:     testToken,
		ProductID: "7",
		Email:     "buyer@example.com",
		SourceURL: "https://example.com/checkout",
		Secure:    true,
	}
}

func TestValidate_OK(t *testing.T) {
	f := newValidatorFixture(t)

	rc, rej := f.validator.Validate(context.Background(), validParams())
	require.Nil(t, rej)
	require.NotNil(t, rc)
	assert.Equal(t, TransPurchase, rc.Type)
	assert.Equal(t, "api@example.com", rc.Principal.Email)
	require.NotNil(t, rc.Product)
	assert.Equal(t, int64(7), rc.Product.ID)
	assert.True(t, rc.Receipt)
}

func TestValidate_RejectionCodes(t *testing.T) {
	f := newValidatorFixture(t)

	tests := []struct {
		name     string
		mutate   func(*Params)
		wantCode string
	}{
		{"missing trans type", func(p *Params) { p.TransType = "" }, CodeTransTypeMissing},
		{"unknown trans type", func(p *Params) { p.TransType = "subscribe" }, CodeUnknownTransType},
		{"insecure transport", func(p *Params) { p.Secure = false }, CodeNoSSL},
		{"both credentials missing", func(p *Params) { p.Key = ""; p.Token = "" }, CodeKeyTokenMissing},
		{"key missing", func(p *Params) { p.Key = "" }, CodeKeyMissing},
		{"token missing", func(p *Params) { p.Token = "" }, CodeTokenMissing},
		{"source url missing", func(p *Params) { p.SourceURL = "" }, CodeSourceURLMissing},
		{"source url not whitelisted", func(p *Params) { p.SourceURL = "https://evil.com" }, CodeSourceURLWhitelist},
		{"unknown key", func(p *Params) { p.Key = "pk_live_unknown" }, CodeNoPaymentAccess},
		{"key without capability", func(p *Params) { p.Key = "pk_live_limited" }, CodeNoPaymentAccess},
		{"product id missing", func(p *Params) { p.ProductID = "" }, CodeNoProductID},
		{"product id non-numeric", func(p *Params) { p.ProductID = "seven" }, CodeInvalidProductID},
		{"product id zero", func(p *Params) { p.ProductID = "0" }, CodeInvalidProductID},
		{"product id negative", func(p *Params) { p.ProductID = "-7" }, CodeInvalidProductID},
		{"product unknown", func(p *Params) { p.ProductID = "999" }, CodeNotValidProduct},
		{"product unpublished", func(p *Params) { p.ProductID = "8" }, CodeNotValidProduct},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			rc, rej := f.validator.Validate(context.Background(), p)
			assert.Nil(t, rc)
			require.NotNil(t, rej)
			assert.Equal(t, tt.wantCode, rej.Code)
			assert.NotEmpty(t, rej.Message)
		})
	}
}

func TestValidate_FirstFailureWins(t *testing.T) {
	f := newValidatorFixture(t)

	// Everything is wrong at once; only the earliest check reports.
	p := Params{TransType: "purchase", Secure: false, ProductID: "bogus"}
	_, rej := f.validator.Validate(context.Background(), p)
	require.NotNil(t, rej)
	assert.Equal(t, CodeNoSSL, rej.Code)

	// Credentials precede the source URL check.
	p = validParams()
	p.Token = ""
	p.SourceURL = ""
	_, rej = f.validator.Validate(context.Background(), p)
	require.NotNil(t, rej)
	assert.Equal(t, CodeTokenMissing, rej.Code)

	// A non-numeric product id reports INVALID_PRODUCT_ID regardless of
	// every other field being valid.
	p = validParams()
	p.ProductID = "7abc"
	_, rej = f.validator.Validate(context.Background(), p)
	require.NotNil(t, rej)
	assert.Equal(t, CodeInvalidProductID, rej.Code)
}

func TestValidate_SSLNotRequired(t *testing.T) {
	f := newValidatorFixture(t)
	v := NewValidator(
		directory.New(f.dirStore), whitelist.NewGuard(true, []string{"example.com"}),
		catalog.New(f.catStore), f.ledger, false,
	)

	p := validParams()
	p.Secure = false
	rc, rej := v.Validate(context.Background(), p)
	assert.Nil(t, rej)
	assert.NotNil(t, rc)
}

func TestValidate_Refund(t *testing.T) {
	f := newValidatorFixture(t)
	ctx := context.Background()

	pay := &ledger.Payment{Total: "25.00", Currency: "USD", ProductID: 7, PurchaseKey: "k"}
	require.NoError(t, f.ledger.CreatePending(ctx, pay))

	p := validParams()
	p.TransType = "refund"
	p.ProductID = "" // refunds do not look at the product
	p.PaymentID = "1"

	rc, rej := f.validator.Validate(ctx, p)
	require.Nil(t, rej)
	require.NotNil(t, rc.Payment)
	assert.Equal(t, pay.ID, rc.Payment.ID)
	assert.Nil(t, rc.Product)
}

func TestValidate_RefundPaymentCodes(t *testing.T) {
	f := newValidatorFixture(t)

	tests := []struct {
		name      string
		paymentID string
		wantCode  string
	}{
		{"missing", "", CodeNoPaymentID},
		{"non-numeric", "abc", CodeInvalidPaymentID},
		{"zero", "0", CodeInvalidPaymentID},
		{"unknown", "555", CodeNotValidPayment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			p.TransType = "refund"
			p.PaymentID = tt.paymentID
			_, rej := f.validator.Validate(context.Background(), p)
			require.NotNil(t, rej)
			assert.Equal(t, tt.wantCode, rej.Code)
		})
	}
}

func TestValidate_DetailsChecksProductBeforePayment(t *testing.T) {
	f := newValidatorFixture(t)

	// Both ids missing: the product check runs first.
	p := validParams()
	p.TransType = "details"
	p.ProductID = ""
	p.PaymentID = ""
	_, rej := f.validator.Validate(context.Background(), p)
	require.NotNil(t, rej)
	assert.Equal(t, CodeNoProductID, rej.Code)

	// Valid product, missing payment.
	p = validParams()
	p.TransType = "details"
	p.PaymentID = ""
	_, rej = f.validator.Validate(context.Background(), p)
	require.NotNil(t, rej)
	assert.Equal(t, CodeNoPaymentID, rej.Code)
}

func TestValidate_DetailsOK(t *testing.T) {
	f := newValidatorFixture(t)
	ctx := context.Background()

	pay := &ledger.Payment{Total: "25.00", Currency: "USD", ProductID: 7, PurchaseKey: "k"}
	require.NoError(t, f.ledger.CreatePending(ctx, pay))

	p := validParams()
	p.TransType = "details"
	p.PaymentID = "1"

	rc, rej := f.validator.Validate(ctx, p)
	require.Nil(t, rej)
	require.NotNil(t, rc.Product)
	require.NotNil(t, rc.Payment)
}

func TestReceiptEnabled(t *testing.T) {
	assert.True(t, receiptEnabled(""))
	assert.True(t, receiptEnabled("1"))
	assert.True(t, receiptEnabled("yes"))
	assert.True(t, receiptEnabled("true"))
	assert.False(t, receiptEnabled("0"))
	assert.False(t, receiptEnabled("false"))
	assert.False(t, receiptEnabled("no"))
}

func TestParamsAsMap(t *testing.T) {
	p := validParams()
	p.Price = "10.00"
	m := p.asMap()

	assert.Equal(t, "purchase", m["trans_type"])
	assert.Equal(t, testKey, m["key"])
	assert.Equal(t, testToken, m["token"]) // redaction happens in the audit log
	assert.Equal(t, "10.00", m["price"])

	// Absent optional fields stay absent; core fields are always present.
	_, hasPayment := m["payment_id"]
	assert.False(t, hasPayment)
	_, hasSource := m["source_url"]
	assert.True(t, hasSource)
}
