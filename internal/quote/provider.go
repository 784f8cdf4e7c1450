package quote

import (
	"context"
	"strings"

	"github.com/Tonic56/stock-trading-simulator/internal/models"
)

// Provider resolves a symbol to its current price and display name.
// Implementations return errs.ErrInvalidSymbol when the symbol does not
// resolve and errs.ErrQuoteUnavailable when the upstream cannot answer.
type Provider interface {
	Lookup(ctx context.Context, symbol string) (*models.Quote, error)
}

type freshKey struct{}

// WithFresh marks ctx so caching providers skip cached answers. The fresh
// answer is still stored.
func WithFresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshKey{}, true)
}

func IsFresh(ctx context.Context) bool {
	fresh, _ := ctx.Value(freshKey{}).(bool)
	return fresh
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
