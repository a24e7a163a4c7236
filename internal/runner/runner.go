// Package runner is an in-process trigger runner: a timer heap that emits
// armed payloads on a channel when their instant arrives.
package runner

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/nudge/internal/models"
)

var (
	ErrInvalidTriggerTime = errors.New("runner: invalid trigger time")
	ErrStopped            = errors.New("runner: stopped")
)

type entry struct {
	handle  models.Handle
	at      time.Time
	payload models.TriggerPayload
	index   int
}

type timerQueue []*entry

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	return q[i].at.Before(q[j].at)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Runner satisfies models.TriggerRunner. Fired triggers are delivered on
// C(); delivery blocks until the consumer receives or the runner stops, so
// nothing is dropped while the process is up.
type Runner struct {
	mu      sync.Mutex
	queue   timerQueue
	byID    map[models.Handle]*entry
	out     chan models.FiredTrigger
	wakeup  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	now     func() time.Time
}

func New(bufferSize int) *Runner {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Runner{
		queue:  make(timerQueue, 0),
		byID:   make(map[models.Handle]*entry),
		out:    make(chan models.FiredTrigger, bufferSize),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		now:    time.Now,
	}
}

func (r *Runner) C() <-chan models.FiredTrigger {
	return r.out
}

func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	heap.Init(&r.queue)
	go r.loop()
}

// Stop halts the loop and closes C. Pending tasks are discarded; callers
// re-arm them from storage on the next start.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stopCh)
	r.mu.Unlock()
	<-r.doneCh
}

func (r *Runner) Arm(ctx context.Context, at time.Time, payload models.TriggerPayload) (models.Handle, error) {
	if at.IsZero() {
		return "", ErrInvalidTriggerTime
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return "", ErrStopped
	}

	e := &entry{
		handle:  models.Handle(uuid.NewString()),
		at:      at,
		payload: payload,
	}
	heap.Push(&r.queue, e)
	r.byID[e.handle] = e
	r.signalWakeup()
	return e.handle, nil
}

// Cancel removes a pending task. Handles that already fired, were already
// cancelled, or were never issued yield models.ErrStaleHandle.
func (r *Runner) Cancel(_ context.Context, h models.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[h]
	if !ok {
		return fmt.Errorf("cancel %s: %w", h, models.ErrStaleHandle)
	}
	delete(r.byID, h)
	heap.Remove(&r.queue, e.index)
	r.signalWakeup()
	return nil
}

// Pending returns the number of armed tasks.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *Runner) loop() {
	defer close(r.doneCh)
	defer close(r.out)

	var timer *time.Timer
	for {
		next, hasNext := r.peek()
		if !hasNext {
			select {
			case <-r.wakeup:
				continue
			case <-r.stopCh:
				return
			}
		}

		wait := next.Sub(r.now())
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			for _, fired := range r.popDue(r.now()) {
				select {
				case r.out <- fired:
				case <-r.stopCh:
					return
				}
			}
		case <-r.wakeup:
			continue
		case <-r.stopCh:
			stopTimer(timer)
			return
		}
	}
}

func (r *Runner) signalWakeup() {
	select {
	case r.wakeup <- struct{}{}:
	default:
	}
}

func (r *Runner) peek() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return time.Time{}, false
	}
	return r.queue[0].at, true
}

func (r *Runner) popDue(now time.Time) []models.FiredTrigger {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.FiredTrigger
	for len(r.queue) > 0 {
		if r.queue[0].at.After(now) {
			break
		}
		e := heap.Pop(&r.queue).(*entry)
		delete(r.byID, e.handle)
		out = append(out, models.FiredTrigger{Handle: e.handle, At: e.at, Payload: e.payload})
	}
	return out
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
