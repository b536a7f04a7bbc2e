package purchase

import (
	"context"
	"errors"
	"strconv"

	"github.com/reaktivstudios/external-purchase-api/internal/catalog"
	"github.com/reaktivstudios/external-purchase-api/internal/directory"
	"github.com/reaktivstudios/external-purchase-api/internal/ledger"
	"github.com/reaktivstudios/external-purchase-api/internal/logging"
	"github.com/reaktivstudios/external-purchase-api/internal/whitelist"
)

// Validator runs the ordered precondition chain. Checks run in a fixed
// order and the first failure is terminal; later checks never execute, so
// a request missing both its key and its product id reports only the key.
type Validator struct {
	directory  *directory.Directory
	guard      *whitelist.Guard
	catalog    *catalog.Catalog
	ledger     *ledger.Ledger
	requireSSL bool
}

// NewValidator wires the validator's collaborators.
func NewValidator(dir *directory.Directory, guard *whitelist.Guard, cat *catalog.Catalog, led *ledger.Ledger, requireSSL bool) *Validator {
	return &Validator{
		directory:  dir,
		guard:      guard,
		catalog:    cat,
		ledger:     led,
		requireSSL: requireSSL,
	}
}

// Validate runs the chain against the raw parameter bag. Exactly one of
// the returns is non-nil.
func (v *Validator) Validate(ctx context.Context, p Params) (*RequestContext, *Rejection) {
	// 1. Transaction type present and recognized.
	if p.TransType == "" {
		return nil, reject(CodeTransTypeMissing)
	}
	transType := TransType(p.TransType)
	if !transType.known() {
		return nil, reject(CodeUnknownTransType)
	}

	// 2. Secure transport.
	if v.requireSSL && !p.Secure {
		return nil, reject(CodeNoSSL)
	}

	// 3. Credentials present. Both missing is its own code, never two codes.
	switch {
	case p.Key == "" && p.Token == "":
		return nil, reject(CodeKeyTokenMissing)
	case p.Key == "":
		return nil, reject(CodeKeyMissing)
	case p.Token == "":
		return nil, reject(CodeTokenMissing)
	}

	// 4. Source URL present.
	if p.SourceURL == "" {
		return nil, reject(CodeSourceURLMissing)
	}

	// 5. Source URL allowed.
	if !v.guard.Allowed(p.SourceURL) {
		return nil, reject(CodeSourceURLWhitelist)
	}

	// 6. Key resolves to a principal holding manage-payments.
	principal, err := v.directory.ResolveKey(ctx, p.Key)
	if err != nil {
		if !errors.Is(err, directory.ErrPrincipalNotFound) {
			logging.L(ctx).Error("principal lookup failed", "error", err)
		}
		return nil, reject(CodeNoPaymentAccess)
	}
	if !principal.Has(directory.CapManagePayments) {
		return nil, reject(CodeNoPaymentAccess)
	}

	rc := &RequestContext{
		Type:       transType,
		Principal:  principal,
		Price:      p.Price,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Email:      p.Email,
		SourceName: p.SourceName,
		SourceURL:  p.SourceURL,
		Receipt:    receiptEnabled(p.Receipt),
		Date:       p.Date,
	}

	// 7. Type-specific checks. Details validates its product before its
	// payment so the first failing check wins deterministically.
	switch transType {
	case TransPurchase:
		if rej := v.checkProduct(ctx, p.ProductID, rc); rej != nil {
			return nil, rej
		}
	case TransRefund:
		if rej := v.checkPayment(ctx, p.PaymentID, rc); rej != nil {
			return nil, rej
		}
	case TransDetails:
		if rej := v.checkProduct(ctx, p.ProductID, rc); rej != nil {
			return nil, rej
		}
		if rej := v.checkPayment(ctx, p.PaymentID, rc); rej != nil {
			return nil, rej
		}
	}

	return rc, nil
}

func (v *Validator) checkProduct(ctx context.Context, raw string, rc *RequestContext) *Rejection {
	if raw == "" {
		return reject(CodeNoProductID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return reject(CodeInvalidProductID)
	}
	product, err := v.catalog.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, catalog.ErrProductNotFound) {
			logging.L(ctx).Error("product lookup failed", "error", err, "product_id", id)
		}
		return reject(CodeNotValidProduct)
	}
	if !product.Published() {
		return reject(CodeNotValidProduct)
	}
	rc.Product = product
	return nil
}

func (v *Validator) checkPayment(ctx context.Context, raw string, rc *RequestContext) *Rejection {
	if raw == "" {
		return reject(CodeNoPaymentID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return reject(CodeInvalidPaymentID)
	}
	payment, err := v.ledger.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ledger.ErrPaymentNotFound) {
			logging.L(ctx).Error("payment lookup failed", "error", err, "payment_id", id)
		}
		return reject(CodeNotValidPayment)
	}
	rc.Payment = payment
	return nil
}

// receiptEnabled implements the receipt opt-out: the receipt goes out
// unless the caller explicitly said no.
func receiptEnabled(raw string) bool {
	switch raw {
	case "0", "false", "no":
		return false
	}
	return true
}
