package payment

import "context"

type Repository interface {
	// CreateIfAbsent inserts p unless a payment with the same source hash
	// exists. It reports whether a row was written.
	CreateIfAbsent(ctx context.Context, p *Payment) (bool, error)
}
