package crossing

import "errors"

var (
	// ErrInvalidDetection marks a detection whose box cannot be measured.
	// Such a detection is not tracked and, for a traffic light, classifies
	// as UNCLEAR; the rest of its frame is processed normally.
	ErrInvalidDetection = errors.New("invalid detection")

	// ErrFramePanic wraps a panic recovered while processing a frame.
	ErrFramePanic = errors.New("panic while processing frame")
)
