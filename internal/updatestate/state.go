// Package updatestate tracks, for one (tile, layer) pair, whether layer data
// is current, in flight, or failed, and when a failed request may be retried.
package updatestate

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
)

var (
	ErrAlreadyPending    = errors.New("layer update already pending")
	ErrInvalidTransition = errors.New("invalid layer update state transition")
)

type Status int

const (
	Idle Status = iota
	Pending
	Success
	Failure
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Failure:
		return "failure"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Version identifies the data a request targets. A successful state is stale
// as soon as the wanted version differs from the one it holds.
type Version struct {
	Level     int
	SourceUID uint64
}

type Backoff struct {
	Base     time.Duration
	Max      time.Duration
	MaxRetry int
}

var DefaultBackoff = Backoff{
	Base:     time.Second,
	Max:      time.Minute,
	MaxRetry: 4,
}

// Delay returns the wait imposed after the given number of consecutive
// failures: Base doubled per extra failure, capped at Max.
func (b Backoff) Delay(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	d := b.Base
	for i := 1; i < failures; i++ {
		if d >= b.Max/2 {
			return b.Max
		}
		d *= 2
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

type State struct {
	backoff Backoff

	status     Status
	prevStatus Status
	pending    Version

	version Version
	noData  bool

	failures         int
	retryAt          time.Time
	lastErr          error
	definitive       bool
	failedSource     uint64
	lowestLevelError int
}

func New(b Backoff) *State {
	return &State{
		backoff:          b,
		lowestLevelError: math.MaxInt,
	}
}

func (s *State) Status() Status { return s.status }
func (s *State) Version() Version { return s.version }
func (s *State) Failures() int { return s.failures }
func (s *State) LastError() error { return s.lastErr }
func (s *State) RetryAt() time.Time { return s.retryAt }
func (s *State) Definitive() bool { return s.definitive }
func (s *State) NoData() bool { return s.status == Success && s.noData }
func (s *State) LowestLevelError() int { return s.lowestLevelError }
func (s *State) PendingVersion() Version { return s.pending }

// CanRefresh reports whether a new request for want may be issued at now.
func (s *State) CanRefresh(now time.Time, want Version) bool {
	switch s.status {
	case Idle:
		return true
	case Pending:
		return false
	case Success:
		return s.version != want
	case Failure:
		if want.SourceUID != s.failedSource {
			return true
		}
		if s.definitive {
			return false
		}
		return !now.Before(s.retryAt)
	}
	return false
}

// Settled reports whether no further request is expected for want: the data
// is current, known to be absent, or failed definitively.
func (s *State) Settled(want Version) bool {
	switch s.status {
	case Success:
		return s.version == want
	case Failure:
		return s.definitive && s.failedSource == want.SourceUID
	}
	return false
}

func (s *State) MarkPending(want Version) error {
	if s.status == Pending {
		return ErrAlreadyPending
	}
	if s.failures > 0 && want.SourceUID != s.failedSource {
		s.resetFailures()
	}
	s.prevStatus = s.status
	s.status = Pending
	s.pending = want
	return nil
}

// Abort returns a pending state to where it was before MarkPending, for
// requests that were dropped without a result.
func (s *State) Abort() {
	if s.status != Pending {
		return
	}
	s.status = s.prevStatus
}

func (s *State) MarkSuccess(v Version) error {
	if s.status != Pending {
		return fmt.Errorf("%w: success from %s", ErrInvalidTransition, s.status)
	}
	s.status = Success
	s.version = v
	s.noData = false
	s.resetFailures()
	return nil
}

// MarkNoData records that the source has nothing for v. The state stays
// settled until the wanted version changes.
func (s *State) MarkNoData(v Version) error {
	if err := s.MarkSuccess(v); err != nil {
		return err
	}
	s.noData = true
	return nil
}

func (s *State) MarkFailure(now time.Time, err error) error {
	if s.status != Pending {
		return fmt.Errorf("%w: failure from %s", ErrInvalidTransition, s.status)
	}
	s.status = Failure
	s.failures++
	s.lastErr = err
	s.failedSource = s.pending.SourceUID
	s.definitive = domain.KindOf(err) == domain.ErrFormat || s.failures > s.backoff.MaxRetry
	s.retryAt = now.Add(s.backoff.Delay(s.failures))
	if s.pending.Level < s.lowestLevelError {
		s.lowestLevelError = s.pending.Level
	}
	return nil
}

func (s *State) resetFailures() {
	s.failures = 0
	s.retryAt = time.Time{}
	s.lastErr = nil
	s.definitive = false
	s.lowestLevelError = math.MaxInt
}
