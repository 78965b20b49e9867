package mail

import (
	"context"
	"errors"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/observability"
	"github.com/boddenberg/securebank-go/internal/infra/resilience"
	"github.com/boddenberg/securebank-go/internal/port"

	"github.com/sony/gobreaker"
)

// Resilient wraps a transport with a bulkhead, a circuit breaker and
// retry with backoff.
type Resilient struct {
	next     port.Mailer
	name     string
	cb       *gobreaker.CircuitBreaker
	bulkhead *resilience.Bulkhead
	cfg      resilience.Config
	metrics  *observability.Metrics
}

// NewResilient wraps next. name labels the breaker and error metrics.
func NewResilient(next port.Mailer, name string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, metrics *observability.Metrics) *Resilient {
	return &Resilient{
		next:     next,
		name:     name,
		cb:       cb,
		bulkhead: resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:      cfg,
		metrics:  metrics,
	}
}

func (r *Resilient) Send(ctx context.Context, msg *domain.MailMessage) error {
	if err := r.bulkhead.Acquire(ctx); err != nil {
		return err
	}
	defer r.bulkhead.Release()

	_, err := r.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, r.cfg, func() error {
			return r.next.Send(ctx, msg)
		})
	})
	if err == nil {
		return nil
	}

	r.metrics.IncrExternalError(r.name)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: r.name}
	}
	return &domain.ErrExternalService{Service: r.name, Err: err}
}
