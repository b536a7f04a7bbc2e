package purchase

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reaktivstudios/external-purchase-api/internal/auditlog"
	"github.com/reaktivstudios/external-purchase-api/internal/catalog"
	"github.com/reaktivstudios/external-purchase-api/internal/directory"
	"github.com/reaktivstudios/external-purchase-api/internal/download"
	"github.com/reaktivstudios/external-purchase-api/internal/ledger"
	"github.com/reaktivstudios/external-purchase-api/internal/mail"
	"github.com/reaktivstudios/external-purchase-api/internal/whitelist"
)

// recorderMailer captures every send for assertion.
type recorderMailer struct {
	mu    sync.Mutex
	sends []recordedMail
}

type recordedMail struct {
	To      string
	Subject string
}

func (m *recorderMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, recordedMail{To: to, Subject: subject})
	return nil
}

func (m *recorderMailer) all() []recordedMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedMail(nil), m.sends...)
}

type serviceFixture struct {
	service    *Service
	dirStore   *directory.MemoryStore
	catStore   *catalog.MemoryStore
	ledger     *ledger.Ledger
	auditStore *auditlog.MemoryStore
	mailer     *recorderMailer
	directory  *directory.Directory
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	dirStore := directory.NewMemoryStore()
	dirStore.AddPrincipal(&directory.Principal{
		Email:        "api@example.com",
		PublicKey:    testKey,
		Capabilities: []directory.Capability{directory.CapManagePayments},
	})
	dir := directory.New(dirStore)

	catStore := catalog.NewMemoryStore()
	catStore.Add(&catalog.Product{
		ID: 7, Name: "Plugin A", Type: catalog.TypeDefault,
		Status: catalog.StatusPublished, Price: "25.00", Licensing: true,
		Files: []catalog.File{{ID: 71, Name: "plugin-a.zip", Path: "files/plugin-a.zip"}},
	})
	catStore.Add(&catalog.Product{
		ID: 9, Name: "Dead Bundle", Type: catalog.TypeBundle,
		Status: catalog.StatusPublished, Price: "30.00",
	})
	cat := catalog.New(catStore)

	led := ledger.New(ledger.NewMemoryStore())
	auditStore := auditlog.NewMemoryStore()
	audit := auditlog.New(auditStore, true)

	mailer := &recorderMailer{}
	notifier := mail.NewNotifier(mailer, "Test Store", "admin@example.com", "refunds@example.com")

	guard := whitelist.NewGuard(true, []string{"example.com"})
	validator := NewValidator(dir, guard, cat, led, true)
	signer := download.NewSigner("https://store.example.com", "0123456789abcdef", time.Hour)

	return &serviceFixture{
		service:    NewService(validator, dir, cat, led, audit, notifier, signer, "USD"),
		dirStore:   dirStore,
		catStore:   catStore,
		ledger:     led,
		auditStore: auditStore,
		mailer:     mailer,
		directory:  dir,
	}
}

var purchaseKeyPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestProcess_Purchase(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	p := validParams()
	p.FirstName = "Ada"
	p.LastName = "Lovelace"
	p.SourceName = "Partner Store"
	resp := f.service.Process(ctx, p)

	require.True(t, resp.Success)
	assert.Equal(t, "The purchase was recorded.", resp.Message)
	assert.Empty(t, resp.ErrorCode)
	require.NotZero(t, resp.PaymentID)
	assert.Regexp(t, purchaseKeyPattern, resp.PurchaseKey)

	// Manifest carries the file with its license.
	require.Len(t, resp.Downloads, 1)
	assert.Equal(t, "plugin-a.zip", resp.Downloads[0].FileName)
	assert.NotEmpty(t, resp.Downloads[0].License)
	assert.Contains(t, resp.Downloads[0].URL, "sig=")

	// The payment completed and fed stats.
	pay, err := f.ledger.Get(ctx, resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusComplete, pay.Status)
	assert.Equal(t, "25.00", pay.Total)
	assert.Equal(t, "USD", pay.Currency)
	assert.Equal(t, "Partner Store", pay.Meta["source_name"])
	assert.Equal(t, "https://example.com/checkout", pay.Meta["source_url"])
	assert.Equal(t, "Ada", pay.Customer.FirstName)

	st, err := f.ledger.GetStats(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Sales)
	assert.Equal(t, "25.00", st.Earnings)

	// The customer was created external.
	c, err := f.directory.FindOrCreateCustomer(ctx, "buyer@example.com", "", "")
	require.NoError(t, err)
	assert.Equal(t, pay.Customer.ID, c.ID)

	// Audit entry closed once, successfully, with the transaction id.
	entries := f.auditStore.All()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Closed)
	assert.True(t, entries[0].Result)
	assert.Equal(t, resp.PaymentID, entries[0].TransID)

	// Receipt to the buyer plus the admin notice.
	sends := f.mailer.all()
	require.Len(t, sends, 2)
	assert.Equal(t, "buyer@example.com", sends[0].To)
	assert.Equal(t, "admin@example.com", sends[1].To)
}

func TestProcess_Purchase_ReceiptOptOut(t *testing.T) {
	f := newServiceFixture(t)

	p := validParams()
	p.Receipt = "0"
	resp := f.service.Process(context.Background(), p)
	require.True(t, resp.Success)

	sends := f.mailer.all()
	require.Len(t, sends, 1)
	assert.Equal(t, "admin@example.com", sends[0].To)
}

func TestProcess_Purchase_PriceOverride(t *testing.T) {
	tests := []struct {
		name  string
		price string
		want  string
	}{
		{"explicit price wins", "10.5", "10.50"},
		{"explicit zero wins", "0", "0.00"},
		{"absent falls back to catalog", "", "25.00"},
		{"garbage falls back to catalog", "free", "25.00"},
		{"negative falls back to catalog", "-5.00", "25.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			p := validParams()
			p.Price = tt.price
			resp := f.service.Process(context.Background(), p)
			require.True(t, resp.Success)

			pay, err := f.ledger.Get(context.Background(), resp.PaymentID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pay.Total)
			assert.Equal(t, tt.want, pay.Cart[0].Price)
		})
	}
}

func TestProcess_Purchase_DateOverride(t *testing.T) {
	f := newServiceFixture(t)

	p := validParams()
	p.Date = "2025-03-01 12:30:00"
	resp := f.service.Process(context.Background(), p)
	require.True(t, resp.Success)

	pay, err := f.ledger.Get(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, 2025, pay.CreatedAt.Year())
	assert.Equal(t, time.March, pay.CreatedAt.Month())
}

func TestProcess_Purchase_EmptyBundle(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	p := validParams()
	p.ProductID = "9"
	resp := f.service.Process(ctx, p)

	require.False(t, resp.Success)
	assert.Equal(t, CodeEmptyBundle, resp.ErrorCode)
	assert.Zero(t, resp.PaymentID)

	// No payment row was written.
	_, err := f.ledger.Get(ctx, 1)
	assert.ErrorIs(t, err, ledger.ErrPaymentNotFound)

	// The audit entry still closed, as a failure.
	entries := f.auditStore.All()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Closed)
	assert.False(t, entries[0].Result)
	assert.Equal(t, CodeEmptyBundle, entries[0].ErrorCode)

	assert.Empty(t, f.mailer.all())
}

func TestProcess_Rejection_NoSideEffects(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	p := validParams()
	p.Key = ""
	p.Token = ""
	resp := f.service.Process(ctx, p)

	require.False(t, resp.Success)
	assert.Equal(t, CodeKeyTokenMissing, resp.ErrorCode)
	assert.NotEmpty(t, resp.Message)

	// The only trace is the closed audit entry: no payment, no customer,
	// no mail.
	entries := f.auditStore.All()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Closed)
	assert.False(t, entries[0].Result)
	assert.Equal(t, CodeKeyTokenMissing, entries[0].ErrorCode)

	_, err := f.ledger.Get(ctx, 1)
	assert.ErrorIs(t, err, ledger.ErrPaymentNotFound)
	assert.Empty(t, f.mailer.all())
}

func TestProcess_Refund(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	buy := f.service.Process(ctx, validParams())
	require.True(t, buy.Success)
	f.mailer.sends = nil

	p := validParams()
	p.TransType = "refund"
	p.ProductID = ""
	p.PaymentID = "1"
	resp := f.service.Process(ctx, p)

	require.True(t, resp.Success)
	assert.Equal(t, "The payment was refunded.", resp.Message)

	pay, err := f.ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusRefunded, pay.Status)
	require.NotNil(t, pay.RefundedAt)

	sends := f.mailer.all()
	require.Len(t, sends, 1)
	assert.Equal(t, "refunds@example.com", sends[0].To)
	assert.Contains(t, sends[0].Subject, "refunded")
}

func TestProcess_Refund_Twice(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	buy := f.service.Process(ctx, validParams())
	require.True(t, buy.Success)

	p := validParams()
	p.TransType = "refund"
	p.PaymentID = "1"

	first := f.service.Process(ctx, p)
	second := f.service.Process(ctx, p)
	assert.True(t, first.Success)
	assert.True(t, second.Success)

	// Three audit entries, one per request, all closed.
	entries := f.auditStore.All()
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.True(t, e.Closed)
	}
}

func TestProcess_Details(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	p := validParams()
	p.SourceName = "Partner Store"
	buy := f.service.Process(ctx, p)
	require.True(t, buy.Success)

	d := validParams()
	d.TransType = "details"
	d.PaymentID = "1"
	resp := f.service.Process(ctx, d)

	require.True(t, resp.Success)
	require.NotNil(t, resp.Purchase)
	assert.Equal(t, buy.PurchaseKey, resp.Purchase.PurchaseKey)
	assert.Equal(t, "25.00", resp.Purchase.Total)
	assert.Equal(t, "USD", resp.Purchase.Currency)
	assert.Equal(t, "Partner Store", resp.Purchase.SourceName)
	assert.Equal(t, "https://example.com/checkout", resp.Purchase.SourceURL)
	assert.NotEmpty(t, resp.Purchase.Date)

	require.Len(t, resp.Downloads, 1)
	assert.Equal(t, "plugin-a.zip", resp.Downloads[0].FileName)
	// The details manifest carries the license issued at purchase time.
	assert.NotEmpty(t, resp.Downloads[0].License)
}

func TestPurchaseTime(t *testing.T) {
	got := purchaseTime("2025-03-01T12:30:00Z")
	assert.Equal(t, 2025, got.Year())

	got = purchaseTime("2025-03-01 12:30:00")
	assert.Equal(t, time.March, got.Month())

	// Garbage and absence both fall back to now.
	assert.WithinDuration(t, time.Now(), purchaseTime("not a date"), time.Minute)
	assert.WithinDuration(t, time.Now(), purchaseTime(""), time.Minute)
}

func TestEffectivePrice_NoCatalogPrice(t *testing.T) {
	f := newServiceFixture(t)
	rc := &RequestContext{Product: &catalog.Product{ID: 1, Price: ""}}
	assert.Equal(t, "0.00", f.service.effectivePrice(rc))
}

func TestIssueLicenses(t *testing.T) {
	sets := []catalog.FileSet{
		{ProductID: 1, Licensing: true},
		{ProductID: 2},
		{ProductID: 3, Licensing: true},
	}
	licenses := issueLicenses(sets)
	require.Len(t, licenses, 2)
	assert.Equal(t, int64(1), licenses[0].ProductID)
	assert.Equal(t, int64(3), licenses[1].ProductID)
	assert.NotEmpty(t, licenses[0].Key)
	assert.NotEqual(t, licenses[0].Key, licenses[1].Key)
}
