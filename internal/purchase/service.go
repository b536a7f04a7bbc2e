package purchase

import (
	"context"
	"time"

	"github.com/reaktivstudios/external-purchase-api/internal/auditlog"
	"github.com/reaktivstudios/external-purchase-api/internal/catalog"
	"github.com/reaktivstudios/external-purchase-api/internal/directory"
	"github.com/reaktivstudios/external-purchase-api/internal/download"
	"github.com/reaktivstudios/external-purchase-api/internal/ledger"
	"github.com/reaktivstudios/external-purchase-api/internal/logging"
	"github.com/reaktivstudios/external-purchase-api/internal/mail"
	"github.com/reaktivstudios/external-purchase-api/internal/traces"
)

// Service is the transaction pipeline: audit, validate, dispatch, handle.
type Service struct {
	validator *Validator
	directory *directory.Directory
	catalog   *catalog.Catalog
	ledger    *ledger.Ledger
	audit     *auditlog.Log
	notifier  *mail.Notifier
	signer    *download.Signer
	currency  string
}

// NewService wires the pipeline. All collaborators are required; the
// audit log and notifier degrade to no-ops internally when disabled.
func NewService(
	validator *Validator,
	dir *directory.Directory,
	cat *catalog.Catalog,
	led *ledger.Ledger,
	audit *auditlog.Log,
	notifier *mail.Notifier,
	signer *download.Signer,
	currency string,
) *Service {
	return &Service{
		validator: validator,
		directory: dir,
		catalog:   cat,
		ledger:    led,
		audit:     audit,
		notifier:  notifier,
		signer:    signer,
		currency:  currency,
	}
}

// Process runs one inbound call end to end and always produces a response
// body. The audit entry opened here is closed on every path: by the
// rejection branch, or by the handler once it knows the transaction id.
func (s *Service) Process(ctx context.Context, p Params) *Response {
	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "purchase.Process", traces.TransType(p.TransType))
	defer span.End()

	logID := s.audit.Open(ctx, p.TransType, p.asMap())

	rc, rej := s.validator.Validate(ctx, p)
	if rej != nil {
		span.SetAttributes(traces.ErrorCode(rej.Code))
		s.audit.CloseRejected(ctx, logID, p.TransType, rej.Code)
		requestsTotal.WithLabelValues(p.TransType, "rejected").Inc()
		rejectionsTotal.WithLabelValues(rej.Code).Inc()
		logging.L(ctx).Info("request rejected",
			"trans_type", p.TransType,
			"error_code", rej.Code,
		)
		return &Response{Success: false, ErrorCode: rej.Code, Message: rej.Message}
	}
	rc.LogID = logID

	var resp *Response
	switch rc.Type {
	case TransPurchase:
		resp = s.handlePurchase(ctx, rc)
	case TransRefund:
		resp = s.handleRefund(ctx, rc)
	case TransDetails:
		resp = s.handleDetails(ctx, rc)
	}

	outcome := "success"
	if !resp.Success {
		outcome = "failed"
		span.SetAttributes(traces.ErrorCode(resp.ErrorCode))
		rejectionsTotal.WithLabelValues(resp.ErrorCode).Inc()
	}
	requestsTotal.WithLabelValues(string(rc.Type), outcome).Inc()
	requestDuration.WithLabelValues(string(rc.Type)).Observe(time.Since(start).Seconds())

	return resp
}
