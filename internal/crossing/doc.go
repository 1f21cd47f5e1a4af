// Package crossing turns per-frame object detections into a stable
// road-crossing decision.
//
// A frame flows through four stages, all owned by a single Pipeline:
//
//   - Tracker: matches detections to last frame's tracks by identity and
//     estimates speed in pixels per second.
//   - ColorClassifier: samples a traffic-light bounding box and votes on the
//     lit lamp colour.
//   - Aggregate: folds annotated detections into a handful of boolean signals.
//   - DecisionMachine: applies the debounce window to those signals and the
//     session Memory to produce DANGER, PREPARING, SAFE or TRANSITION.
//
// The package performs no I/O. Callers feed frames in capture order from a
// single goroutine; see internal/stream for the worker that does that.
package crossing
