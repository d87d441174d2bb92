package ccd

import(
	"fmt"
)

// The error taxonomy for the whole engine. Every operation that fails
// outright returns one of these (possibly wrapped), with the
// offending operation and the violated precondition in the message.
// Per-item trouble inside a batch - one frame that won't align, one
// source off the edge - is recorded and recovered locally instead.

// EmptyInputError: no frames supplied where at least one is required.
type EmptyInputError struct {
	Op string
}

func (e *EmptyInputError)Error() string {
	return fmt.Sprintf("%s: no frames supplied, need at least one", e.Op)
}

// ShapeMismatchError: pixel arrays are not uniformly shaped across an
// operation. Never silently resized.
type ShapeMismatchError struct {
	Op           string
	Subject      string // which frame/master is the odd one out
	GotW, GotH   int
	WantW, WantH int
}

func (e *ShapeMismatchError)Error() string {
	return fmt.Sprintf("%s: shape mismatch: %s is %dx%d, expected %dx%d",
		e.Op, e.Subject, e.GotW, e.GotH, e.WantW, e.WantH)
}

// UnsupportedMethodError: unknown combine/photometry/operator name.
type UnsupportedMethodError struct {
	Op     string
	Method string
}

func (e *UnsupportedMethodError)Error() string {
	return fmt.Sprintf("%s: unsupported method '%s'", e.Op, e.Method)
}

// MissingMasterError: a correction was explicitly required but no
// master frame of that kind was supplied at all.
type MissingMasterError struct {
	Kind string // "zero", "dark", "flat"
}

func (e *MissingMasterError)Error() string {
	return fmt.Sprintf("calibrate: %s correction required but no master %s supplied", e.Kind, e.Kind)
}

// NoMatchingMasterError: masters were supplied per group, but no
// group matches this science frame and there is no unconditional one.
type NoMatchingMasterError struct {
	Kind  string
	Frame string
	Key   string // the grouping value tuple that found no master
}

func (e *NoMatchingMasterError)Error() string {
	return fmt.Sprintf("calibrate: no master %s matches frame '%s' (group %s)", e.Kind, e.Frame, e.Key)
}

// AlignmentFailedError: not one frame in the set could be registered.
type AlignmentFailedError struct {
	Attempted int
}

func (e *AlignmentFailedError)Error() string {
	return fmt.Sprintf("align: none of the %d input frames could be registered", e.Attempted)
}

// NoSourcesError: photometry requested with an empty source list.
type NoSourcesError struct {
	Op string
}

func (e *NoSourcesError)Error() string {
	return fmt.Sprintf("%s: no sources supplied, need at least one", e.Op)
}
