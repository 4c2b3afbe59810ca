// Package scheduler queues, deduplicates and runs the asynchronous commands
// that fetch and build tile data.
//
// A Scheduler belongs to one control loop. Submit, Cancel, Dispatch and Drain
// must all be called from that loop; executors run on their own goroutines
// and report back through a completion channel that Drain empties.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/internal/quadtree"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/telemetry"
)

var ErrNoExecutor = errors.New("no executor registered")

type Config struct {
	MaxConcurrent    int
	CompletionBuffer int
}

type Stats struct {
	Waiting      int    `json:"waiting"`
	Running      int    `json:"running"`
	Submitted    uint64 `json:"submitted"`
	Deduplicated uint64 `json:"deduplicated"`
	Executed     uint64 `json:"executed"`
	Failed       uint64 `json:"failed"`
	Cancelled    uint64 `json:"cancelled"`
}

type laneKey struct {
	tile  quadtree.ID
	layer domain.LayerID
}

type Scheduler struct {
	cfg       Config
	logger    logger.Logger
	executors map[domain.ResourceKind]Executor

	queue    jobQueue
	inflight map[Key]*job
	lanes    map[laneKey][]*Handle
	running  int
	seq      uint64
	stats    Stats

	completions chan completion

	ctx  context.Context
	stop context.CancelFunc
}

func New(cfg Config, l logger.Logger) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.CompletionBuffer <= 0 {
		cfg.CompletionBuffer = cfg.MaxConcurrent
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:         cfg,
		logger:      l,
		executors:   make(map[domain.ResourceKind]Executor),
		inflight:    make(map[Key]*job),
		lanes:       make(map[laneKey][]*Handle),
		completions: make(chan completion, cfg.CompletionBuffer),
		ctx:         ctx,
		stop:        cancel,
	}
}

// Register routes commands of kind to e.
func (s *Scheduler) Register(kind domain.ResourceKind, e Executor) {
	s.executors[kind] = e
}

// Submit enqueues cmd. If a command with the same key is queued or running,
// the returned handle shares that execution; a queued one is promoted to the
// higher of both priorities.
func (s *Scheduler) Submit(cmd *Command) *Handle {
	h := newHandle(cmd)
	s.lanes[h.lane] = append(s.lanes[h.lane], h)
	s.stats.Submitted++
	resource := cmd.Kind.String()
	metrics.CommandsSubmitted.WithLabelValues(resource).Inc()

	if j, ok := s.inflight[cmd.Key]; ok {
		h.job = j
		j.handles = append(j.handles, h)
		if j.state == jobQueued && cmd.Priority > j.priority {
			j.priority = cmd.Priority
			heap.Fix(&s.queue, j.index)
		}
		s.stats.Deduplicated++
		metrics.CommandsDeduplicated.WithLabelValues(resource).Inc()
		s.logger.Debug("joined in-flight command", "key", cmd.Key, "handles", len(j.handles))
		return h
	}

	s.seq++
	j := &job{
		key:      cmd.Key,
		cmd:      cmd,
		priority: cmd.Priority,
		seq:      s.seq,
		handles:  []*Handle{h},
	}
	h.job = j
	s.inflight[cmd.Key] = j
	heap.Push(&s.queue, j)
	s.updateGauges()
	return h
}

// Cancel resolves h as cancelled. A queued execution left without live
// handles is dropped before it starts. A running one is not interrupted;
// its result is discarded for h when it arrives.
func (s *Scheduler) Cancel(h *Handle) {
	if h == nil || h.resolved {
		return
	}
	h.cancelled = true
	h.resolve(Result{Err: domain.NewError(domain.ErrCancelled, "cancel", nil)})
	s.stats.Cancelled++
	metrics.CommandsCancelled.WithLabelValues(h.cmd.Kind.String()).Inc()

	if j := h.job; j != nil && j.state == jobQueued && j.live() == 0 {
		heap.Remove(&s.queue, j.index)
		s.forget(j)
		s.logger.Debug("dropped queued command", "key", j.key)
	}
	s.release(h.lane)
	s.updateGauges()
}

// Dispatch starts queued commands while fewer than MaxConcurrent run.
func (s *Scheduler) Dispatch() {
	for s.running < s.cfg.MaxConcurrent && s.queue.Len() > 0 {
		j := heap.Pop(&s.queue).(*job)

		if j.live() == 0 {
			s.forget(j)
			continue
		}
		if j.cmd.EarlyDrop != nil && j.cmd.EarlyDrop() {
			s.forget(j)
			s.settle(j, Result{Err: domain.NewError(domain.ErrCancelled, "early drop", nil)})
			s.stats.Cancelled++
			metrics.CommandsCancelled.WithLabelValues(j.cmd.Kind.String()).Inc()
			continue
		}

		exec, ok := s.executors[j.cmd.Kind]
		if !ok {
			s.forget(j)
			s.settle(j, Result{Err: fmt.Errorf("%s: %w", j.cmd.Kind, ErrNoExecutor)})
			continue
		}
		s.start(j, exec)
	}
	s.updateGauges()
}

func (s *Scheduler) start(j *job, exec Executor) {
	ctx, cancel := context.WithCancel(s.ctx)
	j.state = jobRunning
	j.cancel = cancel
	s.running++

	go func() {
		defer cancel()
		started := time.Now()
		art, err := s.run(ctx, exec, j.cmd)
		c := completion{job: j, result: Result{Artifact: art, Err: err}, duration: time.Since(started)}
		select {
		case s.completions <- c:
		case <-s.ctx.Done():
		}
	}()
}

// Execute runs cmd synchronously with its registered executor, bypassing
// the queue.
func (s *Scheduler) Execute(ctx context.Context, cmd *Command) (domain.Artifact, error) {
	exec, ok := s.executors[cmd.Kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w", cmd.Kind, ErrNoExecutor)
	}
	return s.run(ctx, exec, cmd)
}

func (s *Scheduler) run(ctx context.Context, exec Executor, cmd *Command) (domain.Artifact, error) {
	ctx, span := telemetry.StartCommandSpan(ctx, cmd.Kind.String(), cmd.Key.String(), cmd.Priority)
	art, err := exec.Execute(ctx, cmd)
	telemetry.EndSpan(span, err)
	return art, err
}

// Drain delivers every completion that has arrived, without blocking. It
// returns how many executions finished.
func (s *Scheduler) Drain() int {
	n := 0
	for {
		select {
		case c := <-s.completions:
			s.complete(c)
			n++
		default:
			s.updateGauges()
			return n
		}
	}
}

// Flush dispatches and waits until nothing is queued or running.
func (s *Scheduler) Flush(ctx context.Context) error {
	for {
		s.Drain()
		s.Dispatch()
		if s.running == 0 && s.queue.Len() == 0 {
			return nil
		}
		select {
		case c := <-s.completions:
			s.complete(c)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops delivering completions. Running executors see their context
// cancelled.
func (s *Scheduler) Close() {
	s.stop()
}

func (s *Scheduler) Stats() Stats {
	st := s.stats
	st.Waiting = s.queue.Len()
	st.Running = s.running
	return st
}

// Pending reports whether key is queued or running.
func (s *Scheduler) Pending(key Key) bool {
	_, ok := s.inflight[key]
	return ok
}

func (s *Scheduler) complete(c completion) {
	j := c.job
	s.running--
	s.forget(j)

	resource := j.cmd.Kind.String()
	s.stats.Executed++
	metrics.CommandsExecuted.WithLabelValues(resource).Inc()
	metrics.CommandDuration.WithLabelValues(resource).Observe(c.duration.Seconds())
	if kind := domain.KindOf(c.result.Err); kind != nil {
		s.stats.Failed++
		metrics.CommandsFailed.WithLabelValues(resource, domain.KindName(kind)).Inc()
		s.logger.Debug("command failed", "key", j.key, "error", c.result.Err)
	}

	s.settle(j, c.result)
}

// settle gives every live handle of j its result and releases their lanes.
func (s *Scheduler) settle(j *job, r Result) {
	j.state = jobFinished
	for _, h := range j.handles {
		if h.cancelled {
			continue
		}
		h.ready = true
		h.result = r
	}
	for _, h := range j.handles {
		s.release(h.lane)
	}
}

// release resolves handles at the head of a lane while they are ready, so a
// requester sees results for one layer in the order it asked for them.
func (s *Scheduler) release(lane laneKey) {
	for {
		q := s.lanes[lane]
		if len(q) == 0 {
			delete(s.lanes, lane)
			return
		}
		h := q[0]
		if !h.cancelled && !h.ready {
			return
		}
		q[0] = nil
		s.lanes[lane] = q[1:]
		if h.cancelled {
			continue
		}
		h.resolve(h.result)
		if h.cmd.OnResolve != nil {
			h.cmd.OnResolve(h.result)
		}
	}
}

func (s *Scheduler) forget(j *job) {
	if s.inflight[j.key] == j {
		delete(s.inflight, j.key)
	}
}

func (s *Scheduler) updateGauges() {
	metrics.CommandsWaiting.Set(float64(s.queue.Len()))
	metrics.CommandsRunning.Set(float64(s.running))
}
