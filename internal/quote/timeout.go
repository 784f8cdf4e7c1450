package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/Tonic56/stock-trading-simulator/lib/errs"
)

type Observer interface {
	ObserveQuote(outcome string)
}

type timeoutProvider struct {
	next     Provider
	timeout  time.Duration
	observer Observer
}

// WithTimeout bounds every lookup by timeout and reports the outcome to
// observer, which may be nil.
func WithTimeout(next Provider, timeout time.Duration, observer Observer) Provider {
	return &timeoutProvider{
		next:     next,
		timeout:  timeout,
		observer: observer,
	}
}

func (p *timeoutProvider) Lookup(ctx context.Context, symbol string) (*models.Quote, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	q, err := p.next.Lookup(ctx, symbol)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, errs.ErrQuoteUnavailable) {
		err = fmt.Errorf("%v: %w", err, errs.ErrQuoteUnavailable)
	}

	p.observe(err)
	return q, err
}

func (p *timeoutProvider) observe(err error) {
	if p.observer == nil {
		return
	}

	switch {
	case err == nil:
		p.observer.ObserveQuote("ok")
	case errors.Is(err, errs.ErrInvalidSymbol):
		p.observer.ObserveQuote("invalid_symbol")
	case errors.Is(err, errs.ErrQuoteUnavailable):
		p.observer.ObserveQuote("unavailable")
	default:
		p.observer.ObserveQuote("error")
	}
}
