package window

import "errors"

var (
	// ErrWrongEpoch is returned when a window operation is attempted
	// outside the epoch that permits it (e.g. fetching during a write
	// epoch, or publishing outside one).
	ErrWrongEpoch = errors.New("window: operation not permitted in current epoch")

	// ErrAgentNotFound is returned when a fetch targets a global id that
	// no longer lives on the master believed to own it.
	ErrAgentNotFound = errors.New("window: agent not found")

	// ErrNotOwner names a local mutation attempted for an agent this
	// master does not own. No function in this repository returns it;
	// Publish and Stage do not check ownership.
	ErrNotOwner = errors.New("window: not the owning master")
)
