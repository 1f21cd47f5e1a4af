package crossing

import "math"

// IdentityAssigner derives the cross-frame identity of a detection. The
// tracker matches by exact identity only, so replacing the assigner is the
// way to swap in a real association algorithm.
type IdentityAssigner interface {
	AssignID(det Detection) int64
}

// CenterHashIdentity hashes the rounded box centre into an id:
// round(cx*1000 + cy).
//
// Known limitation: two objects whose centres hash alike share one id, and an
// object whose centre moves between frames gets a new id with no prior track,
// so it reads as stationary for that frame.
type CenterHashIdentity struct{}

// AssignID implements IdentityAssigner.
func (CenterHashIdentity) AssignID(det Detection) int64 {
	cx, cy := det.BoundingBox.Center()
	return int64(math.Round(cx*1000 + cy))
}

// IdentityFunc adapts a plain function to IdentityAssigner.
type IdentityFunc func(det Detection) int64

// AssignID implements IdentityAssigner.
func (f IdentityFunc) AssignID(det Detection) int64 { return f(det) }
