// Package mail is the notification port for purchase and refund events.
//
// Every send is best-effort: a failed notification is logged and dropped,
// never surfaced to the API caller. The Mailer interface keeps the
// transport swappable; production uses SMTP, tests use a recorder.
package mail

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/reaktivstudios/external-purchase-api/internal/ledger"
	"github.com/reaktivstudios/external-purchase-api/internal/logging"
)

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Notifier implements the store's notification policy on top of a Mailer.
type Notifier struct {
	mailer     Mailer
	storeName  string
	adminEmail string
	refundTo   string // falls back to adminEmail when empty
}

// NewNotifier creates a notifier. refundTo may be empty, in which case
// refund notices go to the admin address.
func NewNotifier(mailer Mailer, storeName, adminEmail, refundTo string) *Notifier {
	if refundTo == "" {
		refundTo = adminEmail
	}
	return &Notifier{
		mailer:     mailer,
		storeName:  storeName,
		adminEmail: adminEmail,
		refundTo:   refundTo,
	}
}

// NotifyAdmin tells the store operator a sale happened. Best-effort.
func (n *Notifier) NotifyAdmin(ctx context.Context, p *ledger.Payment) {
	if n.mailer == nil || n.adminEmail == "" {
		return
	}
	subject := fmt.Sprintf("[%s] New external sale #%d", n.storeName, p.ID)
	body := paymentSummary(p, "New purchase")
	if err := n.mailer.Send(ctx, n.adminEmail, subject, body); err != nil {
		logging.L(ctx).Warn("admin notification failed", "error", err, "payment_id", p.ID)
	}
}

// NotifyRefund tells the configured refund address a payment was refunded.
// Best-effort.
func (n *Notifier) NotifyRefund(ctx context.Context, p *ledger.Payment) {
	if n.mailer == nil || n.refundTo == "" {
		return
	}
	subject := fmt.Sprintf("[%s] Payment #%d refunded", n.storeName, p.ID)
	body := paymentSummary(p, "Refund processed")
	if err := n.mailer.Send(ctx, n.refundTo, subject, body); err != nil {
		logging.L(ctx).Warn("refund notification failed", "error", err, "payment_id", p.ID)
	}
}

// MaybeSendReceipt sends the purchase receipt to the customer unless the
// caller opted out. Best-effort.
func (n *Notifier) MaybeSendReceipt(ctx context.Context, p *ledger.Payment, enabled bool) {
	if !enabled || n.mailer == nil || p.Customer.Email == "" {
		return
	}
	subject := fmt.Sprintf("Your %s purchase receipt", n.storeName)
	body := paymentSummary(p, "Thanks for your purchase")
	if err := n.mailer.Send(ctx, p.Customer.Email, subject, body); err != nil {
		logging.L(ctx).Warn("receipt send failed", "error", err, "payment_id", p.ID)
	}
}

// paymentSummary renders the small HTML table used by every notice:
// payment number, dates, total, customer email, item names.
func paymentSummary(p *ledger.Payment, heading string) string {
	var items []string
	for _, item := range p.Cart {
		items = append(items, html.EscapeString(item.Name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<h3>%s</h3>", html.EscapeString(heading))
	b.WriteString("<table>")
	row := func(label, value string) {
		fmt.Fprintf(&b, "<tr><td><strong>%s</strong></td><td>%s</td></tr>", label, html.EscapeString(value))
	}
	row("Payment", fmt.Sprintf("#%d", p.ID))
	row("Purchased", p.CreatedAt.Format("2006-01-02 15:04:05"))
	if p.RefundedAt != nil {
		row("Refunded", p.RefundedAt.Format("2006-01-02 15:04:05"))
	}
	row("Total", fmt.Sprintf("%s %s", p.Total, p.Currency))
	row("Customer", p.Customer.Email)
	row("Items", strings.Join(items, ", "))
	b.WriteString("</table>")
	return b.String()
}
