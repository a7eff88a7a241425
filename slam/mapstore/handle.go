// Package mapstore is the tracking front-end's local map: keyframes and map
// points held in flat, arena-indexed storage rather than owned pointers, so
// a "replaced" or "bad" map point can be tombstoned in place instead of
// requiring every holder of a reference to be found and updated.
package mapstore

// KeyFrameHandle is a non-owning reference to a KeyFrame in a MapStore's
// arena. The zero value is never a valid handle.
type KeyFrameHandle int

// MapPointHandle is a non-owning reference to a MapPoint in a MapStore's
// arena. The zero value is never a valid handle.
type MapPointHandle int

// Valid reports whether h refers to a real slot.
func (h KeyFrameHandle) Valid() bool { return h > 0 }

// Valid reports whether h refers to a real slot.
func (h MapPointHandle) Valid() bool { return h > 0 }
