package scheduler

import (
	"context"
	"time"
)

type jobState int

const (
	jobQueued jobState = iota
	jobRunning
	jobFinished
)

type job struct {
	key      Key
	cmd      *Command
	priority int
	seq      uint64
	index    int
	state    jobState
	handles  []*Handle
	cancel   context.CancelFunc
}

func (j *job) live() int {
	n := 0
	for _, h := range j.handles {
		if !h.cancelled {
			n++
		}
	}
	return n
}

type completion struct {
	job      *job
	result   Result
	duration time.Duration
}

// jobQueue orders queued jobs by priority, highest first, then by
// submission order.
type jobQueue []*job

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *jobQueue) Push(x any) {
	j := x.(*job)
	j.index = len(*q)
	*q = append(*q, j)
}

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*q = old[:n-1]
	return j
}
