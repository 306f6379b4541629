package partial

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/galaxyprobe/internal/galaxy"
	"github.com/me/galaxyprobe/internal/inputstate"
	"github.com/me/galaxyprobe/internal/schema"
)

// fakeBuild accepts exactly one input map and fails every other with a build
// failure.
type fakeBuild struct {
	accept map[string]any
	calls  []map[string]any
	err    error
	// unreachable fails this many leading calls with a dial error.
	unreachable int
}

func (f *fakeBuild) Build(_ context.Context, _, _ string, inputs map[string]any) (map[string]any, error) {
	f.calls = append(f.calls, inputs)
	if f.err != nil {
		return nil, f.err
	}
	if f.unreachable > 0 {
		f.unreachable--
		return nil, &galaxy.Error{Op: galaxy.OpBuild, Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
	}
	if reflect.DeepEqual(inputs, f.accept) {
		return map[string]any{"built_from": inputs, "log": true}, nil
	}
	return nil, &galaxy.Error{Op: galaxy.OpBuild, Err: fmt.Errorf("%w: HTTP 500", galaxy.ErrBuildFailure)}
}

func candidates(n int) []schema.Candidate {
	out := make([]schema.Candidate, n)
	for i := range out {
		out[i] = schema.Candidate{Path: inputstate.ParsePath(fmt.Sprintf("c%d", i+1)), Value: fmt.Sprintf("v%d", i+1)}
	}
	return out
}

func TestBuildOnlyThirdAloneSucceeds(t *testing.T) {
	svc := &fakeBuild{accept: map[string]any{"c3": "v3"}}
	b := NewBuilder(svc, 0, nil)

	state, err := b.Build(context.Background(), "tool", "hist", candidates(5))
	require.NoError(t, err)

	require.Len(t, svc.calls, 3)
	assert.Equal(t, map[string]any{"c1": "v1"}, svc.calls[0])
	assert.Equal(t, map[string]any{"c2": "v2"}, svc.calls[1])
	assert.Equal(t, map[string]any{"c3": "v3"}, svc.calls[2])

	built, ok := inputstate.Get(state, inputstate.Path{"built_from"})
	require.True(t, ok)
	assert.Equal(t, map[string]any{"c3": "v3"}, built.Value())
}

func TestBuildResetsAfterFailure(t *testing.T) {
	svc := &fakeBuild{accept: map[string]any{"a": map[string]any{"x": 1, "y": 2}}}
	b := NewBuilder(svc, 0, nil)
	cands := []schema.Candidate{
		{Path: inputstate.ParsePath("a|x"), Value: 1},
		{Path: inputstate.ParsePath("a|y"), Value: 2},
	}

	// The combined state would be accepted, but the first failure clears
	// a|x so the second call carries only a|y.
	_, err := b.Build(context.Background(), "tool", "hist", cands)
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, svc.calls, 2)
	assert.Equal(t, map[string]any{"a": map[string]any{"y": 2}}, svc.calls[1])
}

func TestBuildNotFound(t *testing.T) {
	svc := &fakeBuild{accept: map[string]any{"never": true}}
	_, err := NewBuilder(svc, 0, nil).Build(context.Background(), "tool", "hist", candidates(4))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, svc.calls, 4)

	_, err = NewBuilder(svc, 0, nil).Build(context.Background(), "tool", "hist", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBuildAttemptCap(t *testing.T) {
	svc := &fakeBuild{accept: map[string]any{"c3": "v3"}}
	_, err := NewBuilder(svc, 2, nil).Build(context.Background(), "tool", "hist", candidates(5))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, svc.calls, 2)
}

func TestBuildOtherErrorAborts(t *testing.T) {
	boom := errors.New("connection refused")
	svc := &fakeBuild{err: boom}
	_, err := NewBuilder(svc, 0, nil).Build(context.Background(), "tool", "hist", candidates(3))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Len(t, svc.calls, 1)
}

func TestBuildRetriesSameCandidateAfterTransportFailure(t *testing.T) {
	svc := &fakeBuild{accept: map[string]any{"c2": "v2"}, unreachable: 2}
	b := NewBuilder(svc, 2, nil)
	b.Backoff = time.Millisecond

	_, err := b.Build(context.Background(), "tool", "hist", candidates(3))
	require.NoError(t, err)

	// c1 is resent twice before its rejection; the retries do not use up
	// the two attempts allowed.
	require.Len(t, svc.calls, 4)
	for _, call := range svc.calls[:3] {
		assert.Equal(t, map[string]any{"c1": "v1"}, call)
	}
	assert.Equal(t, map[string]any{"c2": "v2"}, svc.calls[3])
}

func TestBuildRetryStopsOnCancel(t *testing.T) {
	svc := &fakeBuild{accept: map[string]any{"c1": "v1"}, unreachable: 1000}
	b := NewBuilder(svc, 0, nil)
	b.Backoff = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Build(ctx, "tool", "hist", candidates(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrNotFound)
}
