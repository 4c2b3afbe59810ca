package scheduler

import (
	"context"
	"fmt"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/quadtree"
)

// Key identifies an execution. Submissions with equal keys share one
// execution while it is queued or running. Tile is zero for work that is
// shared by several tiles, such as a merged feature fetch.
type Key struct {
	Layer    domain.LayerID
	Tile     quadtree.ID
	Resource string
}

func (k Key) String() string {
	if k.Tile.Valid() {
		return fmt.Sprintf("%s/%s/%s", k.Layer, k.Tile, k.Resource)
	}
	return fmt.Sprintf("%s/%s", k.Layer, k.Resource)
}

type Command struct {
	Key      Key
	Kind     domain.ResourceKind
	Priority int

	// Requester is the tile waiting for the result. Results for one
	// (Requester, Key.Layer) pair are delivered in submission order.
	Requester quadtree.ID

	// Request is handed to the executor untouched.
	Request any

	// EarlyDrop is checked right before execution starts. Returning true
	// resolves the command as cancelled without running it.
	EarlyDrop func() bool

	// OnResolve is called on the control loop once the handle resolves,
	// unless the handle was cancelled by its owner.
	OnResolve func(Result)
}

type Result struct {
	Artifact domain.Artifact
	Err      error
}

type Executor interface {
	Execute(ctx context.Context, cmd *Command) (domain.Artifact, error)
}

type ExecutorFunc func(ctx context.Context, cmd *Command) (domain.Artifact, error)

func (f ExecutorFunc) Execute(ctx context.Context, cmd *Command) (domain.Artifact, error) {
	return f(ctx, cmd)
}

// Handle is the requester's view of a submitted command. It resolves exactly
// once: with the execution result, or as cancelled.
type Handle struct {
	cmd  *Command
	job  *job
	lane laneKey

	ready     bool
	resolved  bool
	cancelled bool
	result    Result
	done      chan struct{}
}

func newHandle(cmd *Command) *Handle {
	return &Handle{
		cmd:  cmd,
		lane: laneKey{tile: cmd.Requester, layer: cmd.Key.Layer},
		done: make(chan struct{}),
	}
}

func (h *Handle) Command() *Command { return h.cmd }

// Done is closed when the handle resolves.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result is valid once Done is closed.
func (h *Handle) Result() Result { return h.result }

func (h *Handle) Cancelled() bool { return h.cancelled }

func (h *Handle) resolve(r Result) {
	if h.resolved {
		return
	}
	h.resolved = true
	h.result = r
	close(h.done)
}
