package repository

// scanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

// Outbox/inbox table names. Each service owns exactly one pair.
const (
	TableOrderOutbox   = "order_outbox"
	TableOrderInbox    = "order_inbox"
	TablePaymentOutbox = "payment_outbox"
	TablePaymentInbox  = "payment_inbox"
)
