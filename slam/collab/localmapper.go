package collab

import (
	"context"
	"sync"
	"sync/atomic"

	"go.viam.com/slamtrack/slam/mapstore"
)

// QueuedLocalMapper is a default, in-process LocalMapper that just queues
// keyframes for a caller-supplied processing function, tracking the same
// accept/stop flow-control bits the real back-end exposes over
// AcceptKeyFrames/SetNotStop/isStopped. It exists so tests and small
// deployments do not need a full local mapping thread to exercise the
// tracking front-end's keyframe-insertion path.
type QueuedLocalMapper struct {
	acceptKeyFrames atomic.Bool
	stopped         atomic.Bool
	stopRequested   atomic.Bool
	notStop         atomic.Bool

	mu    sync.Mutex
	queue []mapstore.KeyFrameHandle

	// Process is called synchronously from InsertKeyFrame; a nil Process
	// just queues the handle for later inspection (the shape tests want).
	Process func(ctx context.Context, kf mapstore.KeyFrameHandle) error
}

// NewQueuedLocalMapper returns a QueuedLocalMapper ready to accept keyframes.
func NewQueuedLocalMapper() *QueuedLocalMapper {
	m := &QueuedLocalMapper{}
	m.acceptKeyFrames.Store(true)
	return m
}

// AcceptKeyFrames reports whether the mapper currently accepts new keyframes.
func (m *QueuedLocalMapper) AcceptKeyFrames() bool {
	return m.acceptKeyFrames.Load()
}

// SetAcceptKeyFrames toggles keyframe acceptance.
func (m *QueuedLocalMapper) SetAcceptKeyFrames(accept bool) {
	m.acceptKeyFrames.Store(accept)
}

// InsertKeyFrame queues kf and, if Process is set, runs it synchronously.
func (m *QueuedLocalMapper) InsertKeyFrame(ctx context.Context, kf mapstore.KeyFrameHandle) error {
	m.mu.Lock()
	m.queue = append(m.queue, kf)
	m.mu.Unlock()

	if m.Process == nil {
		return nil
	}
	return m.Process(ctx, kf)
}

// Queue returns a copy of the keyframes inserted so far, oldest first.
func (m *QueuedLocalMapper) Queue() []mapstore.KeyFrameHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mapstore.KeyFrameHandle, len(m.queue))
	copy(out, m.queue)
	return out
}

// InterruptBA is a no-op: QueuedLocalMapper never runs bundle adjustment of
// its own to interrupt.
func (m *QueuedLocalMapper) InterruptBA() {}

// KeyframesInQueue returns the number of keyframes inserted so far.
func (m *QueuedLocalMapper) KeyframesInQueue() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// RequestReset clears the queue, matching a real back-end dropping its
// pending work on a tracking reset.
func (m *QueuedLocalMapper) RequestReset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = nil
}

// SetNotStop asks the mapper not to pause for BA; it fails if the mapper has
// already stopped.
func (m *QueuedLocalMapper) SetNotStop(stop bool) bool {
	if stop && m.stopped.Load() {
		return false
	}
	m.notStop.Store(stop)
	return true
}

// IsStopped reports whether the mapper is currently paused.
func (m *QueuedLocalMapper) IsStopped() bool {
	return m.stopped.Load()
}

// StopRequested reports whether a caller has asked the mapper to pause.
func (m *QueuedLocalMapper) StopRequested() bool {
	return m.stopRequested.Load()
}

// SetStopped is a test/harness hook simulating the back-end pausing itself,
// e.g. to run global bundle adjustment.
func (m *QueuedLocalMapper) SetStopped(stopped bool) {
	m.stopped.Store(stopped)
}
