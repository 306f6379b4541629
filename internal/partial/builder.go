// Package partial finds a base input state the service's build endpoint
// accepts, probing one candidate assignment at a time.
package partial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/galaxyprobe/internal/galaxy"
	"github.com/me/galaxyprobe/internal/inputstate"
	"github.com/me/galaxyprobe/internal/logging"
	"github.com/me/galaxyprobe/internal/metrics"
	"github.com/me/galaxyprobe/internal/schema"
)

// DefaultBackoff is the wait before a candidate is resent after the service
// could not be reached.
const DefaultBackoff = 2 * time.Second

// ErrNotFound means no candidate prefix produced a usable state. Callers
// skip the tool.
var ErrNotFound = errors.New("no buildable partial state")

// BuildService is the part of the service the builder calls.
type BuildService interface {
	Build(ctx context.Context, toolID, historyID string, inputs map[string]any) (map[string]any, error)
}

// Builder probes the build endpoint.
type Builder struct {
	svc BuildService
	// MaxAttempts caps build calls per tool. Zero exhausts the candidates.
	MaxAttempts int
	// Backoff is the wait before resending a candidate whose build call
	// failed in transport.
	Backoff time.Duration
	logger  *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(svc BuildService, maxAttempts int, logger *slog.Logger) *Builder {
	logger = logging.OrDiscard(logger)
	return &Builder{
		svc:         svc,
		MaxAttempts: maxAttempts,
		Backoff:     DefaultBackoff,
		logger:      logger.With("component", "partial"),
	}
}

// Build adds candidates one at a time to an accumulator and calls the build
// endpoint after each addition. The first accepted state is returned. A build
// failure clears the accumulator, so the next call carries only the next
// candidate. A transport failure resends the same state after Backoff and
// does not count as an attempt. Any other error aborts the search.
func (b *Builder) Build(ctx context.Context, toolID, historyID string, candidates []schema.Candidate) (*inputstate.Group, error) {
	log := b.logger.With("tool_id", toolID)
	acc := inputstate.NewGroup()
	attempts := 0
	for i, c := range candidates {
		if b.MaxAttempts > 0 && attempts >= b.MaxAttempts {
			log.Warn("attempt cap reached", "attempts", attempts)
			break
		}
		if err := inputstate.Set(acc, c.Path, c.Value); err != nil {
			log.Debug("candidate does not fit", "path", c.Path.String(), "error", err)
			continue
		}

		attempts++
		state, err := b.build(ctx, log, toolID, historyID, acc)
		if err == nil {
			metrics.BuildAttempt(true)
			log.Debug("partial state found", "candidate", i, "path", c.Path.String(), "attempts", attempts)
			return inputstate.FromMap(state), nil
		}
		metrics.BuildAttempt(false)
		if !galaxy.IsBuildFailure(err) {
			return nil, fmt.Errorf("build %s: %w", toolID, err)
		}
		log.Debug("build rejected, resetting", "candidate", i, "path", c.Path.String())
		acc = inputstate.NewGroup()
	}
	return nil, ErrNotFound
}

// build calls the endpoint with acc, waiting out transport failures.
func (b *Builder) build(ctx context.Context, log *slog.Logger, toolID, historyID string, acc *inputstate.Group) (map[string]any, error) {
	for {
		state, err := b.svc.Build(ctx, toolID, historyID, acc.Value().(map[string]any))
		if err == nil || !galaxy.IsTransport(err) {
			return state, err
		}
		metrics.TransportRetry("build")
		log.Warn("build call failed, retrying", "error", err, "backoff", b.Backoff)
		t := time.NewTimer(b.Backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
