package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/quadtree"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is an executor that logs the keys it runs and optionally blocks
// on a per-resource gate.
type recorder struct {
	mu    sync.Mutex
	order []string
	gates map[string]chan struct{}
	err   error
}

func (r *recorder) Execute(ctx context.Context, cmd *Command) (domain.Artifact, error) {
	r.mu.Lock()
	gate := r.gates[cmd.Key.Resource]
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	r.order = append(r.order, cmd.Key.Resource)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &domain.Texture{Width: 1, Height: 1}, nil
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func newScheduler(t *testing.T, maxConcurrent int, r *recorder) *Scheduler {
	t.Helper()
	s := New(Config{MaxConcurrent: maxConcurrent, CompletionBuffer: 8}, logger.NewNop())
	s.Register(domain.ResourceTexture, r)
	t.Cleanup(s.Close)
	return s
}

func flush(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func tileIDs(n int) []quadtree.ID {
	tree := quadtree.NewTree()
	ids := make([]quadtree.ID, n)
	for i := range ids {
		ids[i] = tree.AddRoot(maptile.New(uint32(i), 0, 0), maptile.New(uint32(i), 0, 0).Bound()).ID()
	}
	return ids
}

func texture(layer domain.LayerID, tile quadtree.ID, resource string, priority int) *Command {
	return &Command{
		Key:       Key{Layer: layer, Tile: tile, Resource: resource},
		Kind:      domain.ResourceTexture,
		Priority:  priority,
		Requester: tile,
	}
}

func TestDuplicateSubmissionSharesExecution(t *testing.T) {
	r := &recorder{}
	s := newScheduler(t, 4, r)
	ids := tileIDs(2)

	var resolved []quadtree.ID
	shared := Key{Layer: "roads", Resource: "z10"}
	h := make([]*Handle, 2)
	for i, id := range ids {
		id := id
		h[i] = s.Submit(&Command{
			Key:       shared,
			Kind:      domain.ResourceTexture,
			Requester: id,
			OnResolve: func(Result) { resolved = append(resolved, id) },
		})
	}
	assert.True(t, s.Pending(shared))

	flush(t, s)

	assert.Equal(t, []string{"z10"}, r.calls())
	assert.ElementsMatch(t, ids, resolved)
	assert.Same(t, h[0].Result().Artifact, h[1].Result().Artifact)
	assert.False(t, s.Pending(shared))

	st := s.Stats()
	assert.Equal(t, uint64(2), st.Submitted)
	assert.Equal(t, uint64(1), st.Deduplicated)
	assert.Equal(t, uint64(1), st.Executed)
}

func TestPriorityOrdersQueuedCommands(t *testing.T) {
	r := &recorder{}
	s := newScheduler(t, 1, r)
	ids := tileIDs(3)

	s.Submit(texture("ortho", ids[0], "low", 1))
	s.Submit(texture("ortho", ids[1], "high", 5))
	s.Submit(texture("ortho", ids[2], "mid", 3))
	flush(t, s)

	assert.Equal(t, []string{"high", "mid", "low"}, r.calls())
}

func TestDuplicateRaisesQueuedPriority(t *testing.T) {
	r := &recorder{}
	s := newScheduler(t, 1, r)
	ids := tileIDs(2)

	s.Submit(texture("ortho", ids[0], "a", 1))
	s.Submit(texture("ortho", ids[1], "b", 2))
	s.Submit(texture("ortho", ids[0], "a", 9))
	flush(t, s)

	assert.Equal(t, []string{"a", "b"}, r.calls())
}

func TestCancelQueuedDropsWithoutRunning(t *testing.T) {
	r := &recorder{}
	s := newScheduler(t, 1, r)
	id := tileIDs(1)[0]

	cmd := texture("ortho", id, "z3", 0)
	called := false
	cmd.OnResolve = func(Result) { called = true }
	h := s.Submit(cmd)
	s.Cancel(h)
	flush(t, s)

	assert.Empty(t, r.calls())
	assert.False(t, called)
	assert.True(t, h.Cancelled())
	assert.ErrorIs(t, h.Result().Err, domain.ErrCancelled)
	select {
	case <-h.Done():
	default:
		t.Fatal("cancelled handle not resolved")
	}
	assert.Equal(t, 0, s.Stats().Waiting)
}

func TestCancelRunningDiscardsResult(t *testing.T) {
	gate := make(chan struct{})
	r := &recorder{gates: map[string]chan struct{}{"z3": gate}}
	s := newScheduler(t, 1, r)
	id := tileIDs(1)[0]

	cmd := texture("ortho", id, "z3", 0)
	called := false
	cmd.OnResolve = func(Result) { called = true }
	h := s.Submit(cmd)
	s.Dispatch()
	assert.Equal(t, 1, s.Stats().Running)

	s.Cancel(h)
	close(gate)
	flush(t, s)

	assert.Equal(t, []string{"z3"}, r.calls())
	assert.False(t, called)
	assert.ErrorIs(t, h.Result().Err, domain.ErrCancelled)
	assert.Equal(t, uint64(1), s.Stats().Executed)
}

func TestLaneResolvesInSubmissionOrder(t *testing.T) {
	gate := make(chan struct{})
	r := &recorder{gates: map[string]chan struct{}{"first": gate}}
	s := newScheduler(t, 2, r)
	id := tileIDs(1)[0]

	var order []string
	first := texture("ortho", id, "first", 0)
	first.OnResolve = func(Result) { order = append(order, "first") }
	second := texture("ortho", id, "second", 0)
	second.OnResolve = func(Result) { order = append(order, "second") }

	s.Submit(first)
	h2 := s.Submit(second)
	s.Dispatch()

	waitFor(t, func() bool {
		s.Drain()
		return h2.ready
	})
	assert.Empty(t, order)
	select {
	case <-h2.Done():
		t.Fatal("second result released before the first")
	default:
	}

	close(gate)
	flush(t, s)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEarlyDropSkipsExecution(t *testing.T) {
	r := &recorder{}
	s := newScheduler(t, 1, r)
	id := tileIDs(1)[0]

	cmd := texture("ortho", id, "z5", 0)
	cmd.EarlyDrop = func() bool { return true }
	var got Result
	cmd.OnResolve = func(res Result) { got = res }
	s.Submit(cmd)
	flush(t, s)

	assert.Empty(t, r.calls())
	assert.ErrorIs(t, got.Err, domain.ErrCancelled)
}

func TestFailureIsTypedAndNotRetried(t *testing.T) {
	r := &recorder{err: domain.NewError(domain.ErrFormat, "decode", errors.New("bad png"))}
	s := newScheduler(t, 1, r)
	id := tileIDs(1)[0]

	h := s.Submit(texture("ortho", id, "z5", 0))
	flush(t, s)

	assert.Equal(t, domain.ErrFormat, domain.KindOf(h.Result().Err))
	assert.Len(t, r.calls(), 1)
	assert.Equal(t, uint64(1), s.Stats().Failed)
}

func TestMissingExecutor(t *testing.T) {
	s := newScheduler(t, 1, &recorder{})
	id := tileIDs(1)[0]

	h := s.Submit(&Command{Key: Key{Layer: "dem", Tile: id, Resource: "z1"}, Kind: domain.ResourceElevation, Requester: id})
	flush(t, s)
	assert.ErrorIs(t, h.Result().Err, ErrNoExecutor)

	_, err := s.Execute(context.Background(), h.Command())
	assert.ErrorIs(t, err, ErrNoExecutor)
}

func TestExecuteRunsSynchronously(t *testing.T) {
	r := &recorder{}
	s := newScheduler(t, 1, r)
	id := tileIDs(1)[0]

	art, err := s.Execute(context.Background(), texture("ortho", id, "direct", 0))
	require.NoError(t, err)
	assert.NotNil(t, art)
	assert.Equal(t, []string{"direct"}, r.calls())
	assert.Equal(t, uint64(0), s.Stats().Submitted)
}
