// Package purchase is the validation and dispatch core of the external
// purchase API.
//
// Every inbound call flows through the same pipeline: an audit log entry
// is opened, the request passes an ordered chain of precondition checks,
// and a validated request is routed to exactly one transaction handler.
// Rejections are terminal, carry a stable machine-readable code, and are
// always logged before the response leaves the core.
package purchase

import (
	"github.com/reaktivstudios/external-purchase-api/internal/catalog"
	"github.com/reaktivstudios/external-purchase-api/internal/directory"
	"github.com/reaktivstudios/external-purchase-api/internal/download"
	"github.com/reaktivstudios/external-purchase-api/internal/ledger"
)

// TransType is the requested transaction type.
type TransType string

const (
	TransPurchase TransType = "purchase"
	TransRefund   TransType = "refund"
	TransDetails  TransType = "details"
)

// known reports whether the type maps to a handler.
func (t TransType) known() bool {
	switch t {
	case TransPurchase, TransRefund, TransDetails:
		return true
	}
	return false
}

// Params is the raw inbound parameter bag, exactly as received at the
// boundary. Empty string means the field was absent.
type Params struct {
	TransType  string
	Key        string
	Token      string
	ProductID  string
	PaymentID  string
	Price      string
	FirstName  string
	LastName   string
	Email      string
	SourceName string
	SourceURL  string
	Receipt    string
	Date       string // optional purchase-time override
	Secure     bool   // whether the call arrived over TLS
}

// asMap renders the bag for audit logging. The token is included here and
// redacted by the audit log itself.
func (p Params) asMap() map[string]string {
	m := map[string]string{
		"trans_type": p.TransType,
		"key":        p.Key,
		"token":      p.Token,
		"source_url": p.SourceURL,
	}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("product_id", p.ProductID)
	set("payment_id", p.PaymentID)
	set("price", p.Price)
	set("first_name", p.FirstName)
	set("last_name", p.LastName)
	set("email", p.Email)
	set("source_name", p.SourceName)
	set("receipt", p.Receipt)
	set("date", p.Date)
	return m
}

// RequestContext is a fully validated request. It is built only by the
// validator and never escapes it partially filled.
type RequestContext struct {
	Type      TransType
	Principal *directory.Principal
	Product   *catalog.Product // purchase and details
	Payment   *ledger.Payment  // refund and details

	Price      string // raw price parameter; "" means use the catalog price
	FirstName  string
	LastName   string
	Email      string
	SourceName string
	SourceURL  string
	Receipt    bool   // send the purchase receipt
	Date       string // raw date override; "" means request time

	LogID int64
}

// Rejection is a terminal validation failure.
type Rejection struct {
	Code    string
	Message string
}

// Error codes, stable across releases. Integrators match on these.
const (
	CodeTransTypeMissing   = "TRANS_TYPE_MISSING"
	CodeUnknownTransType   = "UNKNOWN_TRANS_TYPE"
	CodeNoSSL              = "NO_SSL"
	CodeKeyTokenMissing    = "KEY_TOKEN_MISSING"
	CodeKeyMissing         = "KEY_MISSING"
	CodeTokenMissing       = "TOKEN_MISSING"
	CodeSourceURLMissing   = "SOURCE_URL_MISSING"
	CodeSourceURLWhitelist = "SOURCE_URL_WHITELIST"
	CodeNoPaymentAccess    = "NO_PAYMENT_ACCESS"
	CodeNoProductID        = "NO_PRODUCT_ID"
	CodeInvalidProductID   = "INVALID_PRODUCT_ID"
	CodeNotValidProduct    = "NOT_VALID_PRODUCT"
	CodeNoPaymentID        = "NO_PAYMENT_ID"
	CodeInvalidPaymentID   = "INVALID_PAYMENT_ID"
	CodeNotValidPayment    = "NOT_VALID_PAYMENT"
	CodeEmptyBundle        = "EMPTY_BUNDLE"
	CodeLedgerWriteFailed  = "LEDGER_WRITE_FAILED"
)

// rejectionMessages are the human-readable halves of the codes.
var rejectionMessages = map[string]string{
	CodeTransTypeMissing:   "No transaction type was provided.",
	CodeUnknownTransType:   "The provided transaction type is not recognized.",
	CodeNoSSL:              "The API requires a secure (SSL) connection.",
	CodeKeyTokenMissing:    "The required API key and token were not provided.",
	CodeKeyMissing:         "The required API key was not provided.",
	CodeTokenMissing:       "The required token was not provided.",
	CodeSourceURLMissing:   "No source URL was provided.",
	CodeSourceURLWhitelist: "The provided source URL is not authorized.",
	CodeNoPaymentAccess:    "The API user does not have permission to create payments.",
	CodeNoProductID:        "No product ID was provided.",
	CodeInvalidProductID:   "The provided product ID was not numeric.",
	CodeNotValidProduct:    "The provided ID was not a valid product.",
	CodeNoPaymentID:        "No payment ID was provided.",
	CodeInvalidPaymentID:   "The provided payment ID was not numeric.",
	CodeNotValidPayment:    "The provided ID was not a valid payment.",
	CodeEmptyBundle:        "The purchased bundle has no downloadable products.",
	CodeLedgerWriteFailed:  "The payment could not be recorded.",
}

func reject(code string) *Rejection {
	return &Rejection{Code: code, Message: rejectionMessages[code]}
}

// Response is the single JSON object every call returns. The transport
// always answers HTTP 200; success and error_code carry the real outcome.
type Response struct {
	Success     bool             `json:"success"`
	ErrorCode   string           `json:"error_code,omitempty"`
	Message     string           `json:"message"`
	PaymentID   int64            `json:"payment_id,omitempty"`
	PurchaseKey string           `json:"purchase_key,omitempty"`
	Downloads   []download.Entry `json:"download_data,omitempty"`
	Purchase    *PurchaseData    `json:"purchase_data,omitempty"`
}

// PurchaseData is the read-back purchase metadata on a details response.
type PurchaseData struct {
	PurchaseKey string `json:"purchase_key"`
	Total       string `json:"total"`
	Currency    string `json:"currency"`
	Date        string `json:"date"`
	SourceName  string `json:"source_name,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
}

func failure(code string) *Response {
	return &Response{Success: false, ErrorCode: code, Message: rejectionMessages[code]}
}
