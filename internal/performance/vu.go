package performance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/volley/internal/performance/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is between iterations.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is inside an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been asked to stop.
	VUStateStopping
	// VUStateStopped indicates the VU goroutine has exited.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrVUStopped is returned by RunIteration once a stop was requested.
	ErrVUStopped = errors.New("virtual user is stopping")

	// ErrInterrupted is returned when the hard-stop context was cancelled
	// during an iteration. The outcome of such an iteration is not recorded.
	ErrInterrupted = errors.New("iteration interrupted")

	// ErrScenarioDone is returned after the scenario set Outcome.Terminate.
	ErrScenarioDone = errors.New("scenario finished")
)

// VirtualUser is a single simulated client running scenario iterations.
type VirtualUser struct {
	ID int

	scenario  Scenario
	collector *metrics.Collector
	thinkTime ThinkTime
	logger    logrus.FieldLogger

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
	doneOnce sync.Once

	iteration atomic.Int64
}

// NewVirtualUser creates a VU that records every outcome into collector.
func NewVirtualUser(id int, scenario Scenario, collector *metrics.Collector, thinkTime ThinkTime, logger logrus.FieldLogger) *VirtualUser {
	if logger == nil {
		logger = discardLogger()
	}
	return &VirtualUser{
		ID:        id,
		scenario:  scenario,
		collector: collector,
		thinkTime: thinkTime,
		logger:    logger.WithField("vu", id),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// State returns the current VU state.
func (vu *VirtualUser) State() VUState {
	return VUState(vu.state.Load())
}

// RunIteration invokes the scenario once and records the outcome.
//
// ctx is the hard-stop context: if it is cancelled before the scenario
// returns, the outcome is discarded and ErrInterrupted is returned, so no
// iteration is ever half-recorded.
func (vu *VirtualUser) RunIteration(ctx context.Context) (metrics.Outcome, error) {
	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return metrics.Outcome{}, ErrVUStopped
	}

	n := vu.iteration.Add(1)
	o := vu.invoke(WithIteration(ctx, n))
	o.VUID = vu.ID
	o.Iteration = n

	// A concurrent RequestStop wins over the return to idle.
	vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))

	if ctx.Err() != nil {
		return o, ErrInterrupted
	}

	vu.collector.Record(o)

	if o.Terminate {
		return o, ErrScenarioDone
	}
	return o, nil
}

// invoke calls the scenario, turning a panic into a failed outcome.
func (vu *VirtualUser) invoke(ctx context.Context) (o metrics.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			vu.logger.WithField("panic", r).Error("scenario panicked")
			o = metrics.Outcome{Err: fmt.Errorf("scenario panic: %v", r)}
		}
		if o.Duration == 0 {
			o.Duration = time.Since(start)
		}
	}()
	return vu.scenario.Invoke(ctx)
}

// Pause waits for the think time. It returns false if the VU was asked to
// stop or ctx was cancelled while waiting.
func (vu *VirtualUser) Pause(ctx context.Context) bool {
	wait := vu.thinkTime.Next()
	if wait <= 0 {
		return !vu.StopRequested() && ctx.Err() == nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-vu.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// RequestStop asks the VU to stop after its current iteration.
func (vu *VirtualUser) RequestStop() {
	for {
		cur := vu.state.Load()
		if cur == int32(VUStateStopping) || cur == int32(VUStateStopped) {
			break
		}
		if vu.state.CompareAndSwap(cur, int32(VUStateStopping)) {
			break
		}
	}
	vu.stopOnce.Do(func() { close(vu.stopCh) })
}

// StopRequested reports whether RequestStop has been called.
func (vu *VirtualUser) StopRequested() bool {
	select {
	case <-vu.stopCh:
		return true
	default:
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
// Called by the pool when the VU goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
	vu.doneOnce.Do(func() { close(vu.doneCh) })
}

// Done is closed once the VU has stopped.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
