// ABOUTME: The transactional update engine: authenticate, normalize, serialize, apply.
// ABOUTME: Every submission returns exactly one Result; backend faults never escape.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miekg/dns"

	"github.com/mauromedda/dnsupd/internal/backend"
	"github.com/mauromedda/dnsupd/internal/metrics"
	"github.com/mauromedda/dnsupd/internal/record"
)

// DefaultApplyTimeout bounds a single backend Apply call.
const DefaultApplyTimeout = 10 * time.Second

// ResultKind is the top-level classification of a submission outcome.
type ResultKind uint8

const (
	// Applied means every op in the batch was committed.
	Applied ResultKind = iota
	// Denied means authentication failed; the batch was never inspected.
	Denied
	// Invalid means the batch failed normalization; the backend was not called.
	Invalid
	// Rejected means the backend refused or could not complete the batch.
	Rejected
)

// String returns the canonical name of the kind.
func (k ResultKind) String() string {
	switch k {
	case Applied:
		return "applied"
	case Denied:
		return "denied"
	case Invalid:
		return "invalid"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("ResultKind(%d)", k)
	}
}

// Result is the single outcome of a Submit call.
type Result struct {
	Kind ResultKind

	// Deny is set when Kind is Denied.
	Deny AuthResult
	// Reject is set when Kind is Rejected.
	Reject backend.Reason
	// Err carries the classification detail for Invalid and Rejected.
	Err error
	// Ops is the normalized batch, set once normalization succeeded.
	Ops []record.Op
}

// Request is one update submission. Exactly one of Wire or JSON is set.
type Request struct {
	Zone       string
	Credential Credential
	Wire       []dns.RR
	JSON       []UpdateRequest
}

// Engine orchestrates authentication, normalization, per-zone serialization
// and atomic application of update batches.
type Engine struct {
	backend backend.Backend
	auth    *Authenticator
	norm    Normalizer
	locks   *zoneLocks
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithApplyTimeout bounds the backend call per batch.
func WithApplyTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMinTTL sets the lowest TTL accepted on additions.
func WithMinTTL(ttl uint32) Option {
	return func(e *Engine) { e.norm.MinTTL = ttl }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an update engine over the given backend.
func New(b backend.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: b,
		auth:    NewAuthenticator(b),
		locks:   newZoneLocks(),
		timeout: DefaultApplyTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit runs one update batch through the engine. The check order is fixed:
// authentication before normalization, so an unauthenticated caller never
// learns whether its batch was structurally valid, and the backend is only
// reached by batches that passed both.
func (e *Engine) Submit(ctx context.Context, req Request) Result {
	res := e.submit(ctx, req)
	metrics.EngineResults.WithLabelValues(res.Kind.String()).Inc()
	return res
}

func (e *Engine) submit(ctx context.Context, req Request) Result {
	zone := record.Canonical(req.Zone)

	authRes, err := e.auth.Authenticate(ctx, zone, req.Credential)
	if err != nil {
		e.logger.Error("authentication backend fault", "zone", zone, "error", err)
		return Result{Kind: Rejected, Reject: backend.ReasonUnavailable, Err: err}
	}
	if authRes != Authorized {
		e.logger.Info("update denied", "zone", zone, "reason", authRes.String())
		return Result{Kind: Denied, Deny: authRes}
	}

	var ops []record.Op
	if req.Wire != nil {
		ops, err = e.norm.FromWire(zone, req.Wire)
	} else {
		ops, err = e.norm.FromJSON(zone, req.JSON)
	}
	if err != nil {
		e.logger.Info("update invalid", "zone", zone, "error", err)
		return Result{Kind: Invalid, Err: err}
	}

	lock := e.locks.acquire(zone)
	defer e.locks.release(zone, lock)

	start := time.Now()
	err = e.apply(ctx, zone, ops)
	metrics.ApplyDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		e.logger.Info("update applied", "zone", zone, "ops", len(ops))
		return Result{Kind: Applied, Ops: ops}
	}

	var rej *backend.RejectError
	if errors.As(err, &rej) {
		e.logger.Warn("update rejected", "zone", zone, "reason", rej.Reason.String(), "error", err)
		return Result{Kind: Rejected, Reject: rej.Reason, Err: rej, Ops: ops}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e.logger.Warn("update timed out", "zone", zone)
		return Result{Kind: Rejected, Reject: backend.ReasonTimeout, Err: err, Ops: ops}
	}
	if errors.Is(err, context.Canceled) {
		e.logger.Info("update cancelled", "zone", zone)
		return Result{Kind: Rejected, Reject: backend.ReasonUnavailable, Err: err, Ops: ops}
	}
	e.logger.Error("backend fault", "zone", zone, "error", err)
	return Result{Kind: Rejected, Reject: backend.ReasonUnavailable, Err: err, Ops: ops}
}

// apply calls the backend with a bounded timeout. The call runs in its own
// goroutine so a backend that ignores its context cannot hold the caller,
// and a panicking backend is contained to this request.
func (e *Engine) apply(ctx context.Context, zone string, ops []record.Op) error {
	applyCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("backend panic: %v", r)
			}
		}()
		done <- e.backend.Apply(applyCtx, zone, ops)
	}()

	select {
	case err := <-done:
		return err
	case <-applyCtx.Done():
		// DeadlineExceeded when the apply budget ran out, Canceled when the
		// caller went away.
		return applyCtx.Err()
	}
}
