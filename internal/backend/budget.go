package backend

import (
	"context"
	"sync/atomic"
)

// Budget caps the number of backend calls made on behalf of one request.
// A nil Budget is unlimited. Safe for concurrent use.
type Budget struct {
	limit int64
	used  atomic.Int64
}

// NewBudget returns a Budget allowing limit calls. A non-positive limit
// returns nil (unlimited).
func NewBudget(limit int) *Budget {
	if limit <= 0 {
		return nil
	}
	return &Budget{limit: int64(limit)}
}

// Take reserves one call, returning ErrBudgetExhausted when none remain.
func (b *Budget) Take() error {
	if b == nil {
		return nil
	}
	if b.used.Add(1) > b.limit {
		return ErrBudgetExhausted
	}
	return nil
}

// Used returns the number of calls reserved so far, including refused ones.
func (b *Budget) Used() int {
	if b == nil {
		return 0
	}
	return int(b.used.Load())
}

type budgetKey struct{}

// WithBudget attaches b to ctx so that retries made by the backend clients
// are charged against it. The first attempt of a call is charged by the
// caller.
func WithBudget(ctx context.Context, b *Budget) context.Context {
	if b == nil {
		return ctx
	}
	return context.WithValue(ctx, budgetKey{}, b)
}

func budgetFrom(ctx context.Context) *Budget {
	b, _ := ctx.Value(budgetKey{}).(*Budget)
	return b
}
