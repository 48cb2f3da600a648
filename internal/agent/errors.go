package agent

import "errors"

var (
	// ErrRunActive rejects a second goal submitted while a run is in
	// progress against the same target.
	ErrRunActive = errors.New("a run is already active for this target")
	// ErrInterrupted reports a cooperative stop honored at the top of a
	// loop iteration.
	ErrInterrupted = errors.New("run interrupted")
	// ErrMaxSteps reports that the iteration cap fired before a terminal
	// action.
	ErrMaxSteps = errors.New("max steps reached")
	// ErrTooManyExtractionFailures reports that the model produced
	// unparseable replies too many times in a row.
	ErrTooManyExtractionFailures = errors.New("too many consecutive extraction failures")
)
