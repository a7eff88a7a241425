package track

import (
	"sync"

	"go.viam.com/slamtrack/slam/mapstore"
	"go.viam.com/slamtrack/spatialmath"
)

// TrajectoryEntry is one appended record: the relative pose from the current
// camera frame to its reference keyframe, plus enough context to reconstruct
// an absolute trajectory later.
type TrajectoryEntry struct {
	FrameID   int64
	Timestamp int64
	Reference mapstore.KeyFrameHandle
	RelativePose spatialmath.Pose
	Lost         bool
}

// TrajectoryLog is the append-only record of per-frame relative poses the
// engine produces. Every process() call from the one that completes
// initialization onward adds exactly one entry; calls made before
// initialization completes, and a call during which a full reset fires, add
// none.
type TrajectoryLog struct {
	mu      sync.Mutex
	entries []TrajectoryEntry
}

// Append records entry as the next trajectory sample.
func (t *TrajectoryLog) Append(entry TrajectoryEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
}

// RepeatLast appends a copy of the most recent entry, used when the current
// tick could not produce a pose (a tick that ends Lost, or one with no
// reference keyframe to log against).
func (t *TrajectoryLog) RepeatLast(frameID, ts int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) == 0 {
		t.entries = append(t.entries, TrajectoryEntry{FrameID: frameID, Timestamp: ts, Lost: true})
		return
	}
	last := t.entries[len(t.entries)-1]
	last.FrameID = frameID
	last.Timestamp = ts
	last.Lost = true
	t.entries = append(t.entries, last)
}

// Entries returns a copy of every entry recorded so far, in frame order.
func (t *TrajectoryLog) Entries() []TrajectoryEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TrajectoryEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries recorded since the last Reset.
func (t *TrajectoryLog) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Reset clears the log, matching a full system reset restarting frame ids at 1.
func (t *TrajectoryLog) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}
