package purchase

import (
	"context"
	"errors"
	"time"

	"github.com/reaktivstudios/external-purchase-api/internal/catalog"
	"github.com/reaktivstudios/external-purchase-api/internal/idgen"
	"github.com/reaktivstudios/external-purchase-api/internal/ledger"
	"github.com/reaktivstudios/external-purchase-api/internal/logging"
	"github.com/reaktivstudios/external-purchase-api/internal/traces"
)

// metaSourceName and metaSourceURL are the auxiliary metadata keys a
// purchase stamps onto its payment.
const (
	metaSourceName = "source_name"
	metaSourceURL  = "source_url"
)

// handlePurchase records an externally-made sale: resolve the customer,
// price the cart, persist a pending payment, complete it, and hand back
// the download manifest.
func (s *Service) handlePurchase(ctx context.Context, rc *RequestContext) *Response {
	ctx, span := traces.StartSpan(ctx, "purchase.handlePurchase", traces.ProductID(rc.Product.ID))
	defer span.End()

	customer, err := s.directory.FindOrCreateCustomer(ctx, rc.Email, rc.FirstName, rc.LastName)
	if err != nil {
		logging.L(ctx).Error("customer resolution failed", "error", err, "email", rc.Email)
		s.audit.CloseFailed(ctx, rc.LogID, string(rc.Type), CodeLedgerWriteFailed)
		return failure(CodeLedgerWriteFailed)
	}

	price := s.effectivePrice(rc)

	sets, err := s.catalog.ResolveFiles(ctx, rc.Product)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyBundle) {
			// A bundle selling nothing downloadable is a catalog bug;
			// abort before any payment row exists.
			s.audit.CloseFailed(ctx, rc.LogID, string(rc.Type), CodeEmptyBundle)
			return failure(CodeEmptyBundle)
		}
		logging.L(ctx).Error("file resolution failed", "error", err, "product_id", rc.Product.ID)
		s.audit.CloseFailed(ctx, rc.LogID, string(rc.Type), CodeLedgerWriteFailed)
		return failure(CodeLedgerWriteFailed)
	}

	payment := &ledger.Payment{
		Total:       price,
		Currency:    s.currency,
		PurchaseKey: idgen.PurchaseKey(),
		Gateway:     ledger.GatewayExternal,
		ProductID:   rc.Product.ID,
		Customer: ledger.CustomerInfo{
			ID:        customer.ID,
			Email:     customer.Email,
			FirstName: firstNonEmpty(rc.FirstName, customer.FirstName),
			LastName:  firstNonEmpty(rc.LastName, customer.LastName),
			Discount:  "none",
		},
		Cart: []ledger.LineItem{{
			Name:       rc.Product.Name,
			ID:         rc.Product.ID,
			ItemNumber: rc.Product.ID,
			Price:      price,
			Quantity:   1,
			Tax:        "0.00",
		}},
		Licenses:  issueLicenses(sets),
		CreatedAt: purchaseTime(rc.Date),
	}

	if err := s.ledger.CreatePending(ctx, payment); err != nil {
		logging.L(ctx).Error("payment insert failed", "error", err, "product_id", rc.Product.ID)
		s.audit.CloseFailed(ctx, rc.LogID, string(rc.Type), CodeLedgerWriteFailed)
		return failure(CodeLedgerWriteFailed)
	}
	span.SetAttributes(traces.PaymentID(payment.ID))

	// Source attribution rides alongside the payment, not in it. A failed
	// meta write degrades attribution, not the sale.
	if rc.SourceName != "" {
		if err := s.ledger.SetMeta(ctx, payment.ID, metaSourceName, rc.SourceName); err != nil {
			logging.L(ctx).Warn("source_name meta write failed", "error", err, "payment_id", payment.ID)
		}
	}
	if err := s.ledger.SetMeta(ctx, payment.ID, metaSourceURL, rc.SourceURL); err != nil {
		logging.L(ctx).Warn("source_url meta write failed", "error", err, "payment_id", payment.ID)
	}

	// Completing is what feeds sales/earnings accounting downstream.
	if err := s.ledger.Complete(ctx, payment.ID); err != nil {
		logging.L(ctx).Error("payment completion failed", "error", err, "payment_id", payment.ID)
		s.audit.CloseFailed(ctx, rc.LogID, string(rc.Type), CodeLedgerWriteFailed)
		return failure(CodeLedgerWriteFailed)
	}

	s.notifier.MaybeSendReceipt(ctx, payment, rc.Receipt)
	s.notifier.NotifyAdmin(ctx, payment)

	manifest := s.signer.Manifest(payment, sets, time.Now())

	s.audit.CloseSuccess(ctx, rc.LogID, string(rc.Type), payment.ID)
	paymentAmounts.Observe(amountForMetrics(price))
	logging.L(ctx).Info("purchase recorded",
		"payment_id", payment.ID,
		"product_id", rc.Product.ID,
		"total", price,
		"source", rc.SourceName,
	)

	return &Response{
		Success:     true,
		Message:     "The purchase was recorded.",
		PaymentID:   payment.ID,
		PurchaseKey: payment.PurchaseKey,
		Downloads:   manifest,
	}
}

// effectivePrice applies the override rule: an explicit price parameter
// wins, including an explicit zero; absence or an unparseable value falls
// back to the catalog price.
func (s *Service) effectivePrice(rc *RequestContext) string {
	if rc.Price != "" {
		if cents, ok := ledger.ParseAmount(rc.Price); ok && cents >= 0 {
			return ledger.FormatAmount(cents)
		}
	}
	if cents, ok := ledger.ParseAmount(rc.Product.Price); ok {
		return ledger.FormatAmount(cents)
	}
	return "0.00"
}

// issueLicenses mints one key per licensed product in the resolved sets,
// keyed by product id.
func issueLicenses(sets []catalog.FileSet) []ledger.License {
	var out []ledger.License
	for _, set := range sets {
		if set.Licensing {
			out = append(out, ledger.License{ProductID: set.ProductID, Key: idgen.LicenseKey()})
		}
	}
	return out
}

// purchaseTime honors an explicit date override, falling back to now.
// Both RFC 3339 and the classic "2006-01-02 15:04:05" form are accepted.
func purchaseTime(raw string) time.Time {
	if raw == "" {
		return time.Now()
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return t
	}
	return time.Now()
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
