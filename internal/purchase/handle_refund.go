package purchase

import (
	"context"
	"errors"

	"github.com/reaktivstudios/external-purchase-api/internal/ledger"
	"github.com/reaktivstudios/external-purchase-api/internal/logging"
	"github.com/reaktivstudios/external-purchase-api/internal/traces"
)

// handleRefund transitions a payment to refunded and fires the refund
// notice. There is no inverse operation and no idempotence guard at this
// layer: a second refund call re-executes the transition and still
// succeeds, with both calls visible in the audit log.
func (s *Service) handleRefund(ctx context.Context, rc *RequestContext) *Response {
	ctx, span := traces.StartSpan(ctx, "purchase.handleRefund", traces.PaymentID(rc.Payment.ID))
	defer span.End()

	if err := s.ledger.Refund(ctx, rc.Payment.ID); err != nil {
		if errors.Is(err, ledger.ErrPaymentNotFound) {
			// Validated moments ago; only a concurrent delete gets here.
			s.audit.CloseFailed(ctx, rc.LogID, string(rc.Type), CodeNotValidPayment)
			return failure(CodeNotValidPayment)
		}
		logging.L(ctx).Error("refund transition failed", "error", err, "payment_id", rc.Payment.ID)
		s.audit.CloseFailed(ctx, rc.LogID, string(rc.Type), CodeLedgerWriteFailed)
		return failure(CodeLedgerWriteFailed)
	}

	// Re-read so the notice carries the refund timestamp just stamped.
	refunded, err := s.ledger.Get(ctx, rc.Payment.ID)
	if err != nil {
		refunded = rc.Payment
	}
	s.notifier.NotifyRefund(ctx, refunded)

	s.audit.CloseSuccess(ctx, rc.LogID, string(rc.Type), rc.Payment.ID)
	refundsTotal.Inc()
	logging.L(ctx).Info("payment refunded", "payment_id", rc.Payment.ID)

	return &Response{
		Success: true,
		Message: "The payment was refunded.",
	}
}
