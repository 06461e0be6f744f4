package recording

import (
	"context"
	"sync"
	"time"

	"github.com/chys-app/chys-live/community-service/internal/metrics"
	"github.com/chys-app/chys-live/pkg/log"
)

type verifyOutcome int

const (
	// outcomeRetry asks for another attempt if any are left.
	outcomeRetry verifyOutcome = iota
	outcomeStarted
	// outcomeSkipped means the session ended or moved to another recording.
	outcomeSkipped
)

type checkFunc func(ctx context.Context, broadcastID, sid string, attempt int) verifyOutcome

// verifier runs delayed status checks, at most one task per broadcast.
type verifier struct {
	delay    time.Duration
	attempts int
	check    checkFunc

	mu    sync.Mutex
	tasks map[string]*verifyTask
}

type verifyTask struct {
	sid     string
	attempt int
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
}

func newVerifier(delay time.Duration, attempts int, check checkFunc) *verifier {
	if attempts <= 0 {
		attempts = 1
	}
	return &verifier{
		delay:    delay,
		attempts: attempts,
		check:    check,
		tasks:    make(map[string]*verifyTask),
	}
}

// Schedule replaces any pending task for broadcastID with a fresh one for sid.
func (v *verifier) Schedule(broadcastID, sid string) {
	ctx, cancel := context.WithCancel(context.Background())
	task := &verifyTask{sid: sid, ctx: ctx, cancel: cancel}

	v.mu.Lock()
	if old, ok := v.tasks[broadcastID]; ok {
		old.timer.Stop()
		old.cancel()
	}
	v.tasks[broadcastID] = task
	task.timer = time.AfterFunc(v.delay, func() { v.fire(broadcastID, task) })
	v.mu.Unlock()
}

func (v *verifier) fire(broadcastID string, task *verifyTask) {
	if !v.current(broadcastID, task) {
		return
	}

	task.attempt++
	outcome := v.check(task.ctx, broadcastID, task.sid, task.attempt)

	l := log.L()
	switch {
	case task.ctx.Err() != nil:
		return
	case outcome == outcomeStarted:
		metrics.RecordingVerifications.WithLabelValues("started").Inc()
		v.finish(broadcastID, task)
		return
	case outcome == outcomeSkipped:
		metrics.RecordingVerifications.WithLabelValues("skipped").Inc()
		v.finish(broadcastID, task)
		return
	case task.attempt >= v.attempts:
		metrics.RecordingVerifications.WithLabelValues("failed").Inc()
		l.Error().
			Str(log.FieldBroadcastID, broadcastID).
			Str(log.FieldSID, task.sid).
			Int("attempts", task.attempt).
			Msg("recording not confirmed as started, giving up")
		v.finish(broadcastID, task)
		return
	}

	v.mu.Lock()
	if v.tasks[broadcastID] == task {
		task.timer = time.AfterFunc(v.delay, func() { v.fire(broadcastID, task) })
	}
	v.mu.Unlock()
}

func (v *verifier) current(broadcastID string, task *verifyTask) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tasks[broadcastID] == task && task.ctx.Err() == nil
}

func (v *verifier) finish(broadcastID string, task *verifyTask) {
	v.mu.Lock()
	if v.tasks[broadcastID] == task {
		delete(v.tasks, broadcastID)
	}
	v.mu.Unlock()
	task.cancel()
}

// Cancel drops the pending task of broadcastID, reporting whether one existed.
func (v *verifier) Cancel(broadcastID string) bool {
	v.mu.Lock()
	task, ok := v.tasks[broadcastID]
	if ok {
		delete(v.tasks, broadcastID)
		task.timer.Stop()
	}
	v.mu.Unlock()

	if !ok {
		return false
	}
	task.cancel()
	metrics.RecordingVerifications.WithLabelValues("cancelled").Inc()
	return true
}

// Pending reports whether broadcastID has a scheduled task.
func (v *verifier) Pending(broadcastID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.tasks[broadcastID]
	return ok
}

// StopAll cancels every pending task.
func (v *verifier) StopAll() {
	v.mu.Lock()
	defer v.mu.Unlock()

	for id, task := range v.tasks {
		task.timer.Stop()
		task.cancel()
		delete(v.tasks, id)
	}
}
