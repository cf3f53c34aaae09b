package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateAgentType is returned when an agent type id is registered twice.
	ErrDuplicateAgentType = errors.New("catalog: duplicate agent type")

	// ErrDuplicateAttribute is returned when an attribute id is registered
	// twice for the same agent type.
	ErrDuplicateAttribute = errors.New("catalog: duplicate attribute")

	// ErrDuplicateInteractionType is returned when an interaction type id is
	// registered twice.
	ErrDuplicateInteractionType = errors.New("catalog: duplicate interaction type")

	// ErrUnknownAgentType is returned when an attribute or factory references
	// an agent type that was never registered.
	ErrUnknownAgentType = errors.New("catalog: unknown agent type")

	// ErrAgentNotFound is returned when a requested global id has no
	// corresponding agent on any master known to the catalog's partition table.
	ErrAgentNotFound = errors.New("catalog: agent not found")

	// ErrAlreadyBuilt is returned when Builder methods are called after Build.
	ErrAlreadyBuilt = errors.New("catalog: builder already finalized")
)

// BuildError wraps a catalog construction failure with the offending name.
type BuildError struct {
	Err  error
	Name string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("catalog: %s: %v", e.Name, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
