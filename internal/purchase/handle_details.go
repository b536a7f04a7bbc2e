package purchase

import (
	"context"
	"time"

	"github.com/reaktivstudios/external-purchase-api/internal/catalog"
	"github.com/reaktivstudios/external-purchase-api/internal/logging"
	"github.com/reaktivstudios/external-purchase-api/internal/traces"
)

// handleDetails reads back a prior purchase: its metadata plus the same
// download manifest a fresh purchase would compute. Pure read; the only
// write is closing the audit entry.
func (s *Service) handleDetails(ctx context.Context, rc *RequestContext) *Response {
	ctx, span := traces.StartSpan(ctx, "purchase.handleDetails",
		traces.ProductID(rc.Product.ID), traces.PaymentID(rc.Payment.ID))
	defer span.End()

	sets, err := s.catalog.ResolveFiles(ctx, rc.Product)
	if err != nil {
		// Details tolerates a since-emptied bundle: the purchase stands,
		// there is just nothing left to link.
		logging.L(ctx).Warn("file resolution failed on details", "error", err, "product_id", rc.Product.ID)
		sets = []catalog.FileSet{}
	}

	manifest := s.signer.Manifest(rc.Payment, sets, time.Now())

	data := &PurchaseData{
		PurchaseKey: rc.Payment.PurchaseKey,
		Total:       rc.Payment.Total,
		Currency:    rc.Payment.Currency,
		Date:        rc.Payment.CreatedAt.Format("2006-01-02 15:04:05"),
		SourceName:  rc.Payment.Meta[metaSourceName],
		SourceURL:   rc.Payment.Meta[metaSourceURL],
	}

	s.audit.CloseSuccess(ctx, rc.LogID, string(rc.Type), rc.Payment.ID)

	return &Response{
		Success:   true,
		Message:   "Purchase details retrieved.",
		Downloads: manifest,
		Purchase:  data,
	}
}
