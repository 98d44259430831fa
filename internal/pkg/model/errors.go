package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for record-level outcomes. Batch imports keep going on
// these and count them per category.
var (
	// ErrFiltered marks records rejected by the caller's keep filter.
	ErrFiltered = errors.New("filtered")

	// ErrAlreadyExists marks a branch landing on an occupied coordinate
	// with the same connection set.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNoGeometry marks records without a usable polyline.
	ErrNoGeometry = errors.New("no geometry")
)

// NoVoltageError reports a record carrying no grid voltage level.
type NoVoltageError struct {
	ID string
}

func (e *NoVoltageError) Error() string {
	return fmt.Sprintf("%s: no usable voltage level", e.ID)
}

// PowerFrequencyError reports a cable count that fits no phase layout of
// the declared frequencies.
type PowerFrequencyError struct {
	ID        string
	Frequency string
}

func (e *PowerFrequencyError) Error() string {
	return fmt.Sprintf("%s: cannot decide circuit frequency (tag %q)", e.ID, e.Frequency)
}

// CircuitCountError reports declared cable and circuit counts that
// contradict each other.
type CircuitCountError struct {
	ID     string
	Detail string
}

func (e *CircuitCountError) Error() string {
	return fmt.Sprintf("%s: %s", e.ID, e.Detail)
}

// NoValidCircuitError reports a connection whose circuits were all
// rejected.
type NoValidCircuitError struct {
	ID string
}

func (e *NoValidCircuitError) Error() string {
	return fmt.Sprintf("%s: no valid circuits", e.ID)
}

// CablesPerPhaseError reports a circuit whose cable count is not a
// multiple of its phase count.
type CablesPerPhaseError struct {
	Cables int
	Phases int
}

func (e *CablesPerPhaseError) Error() string {
	return fmt.Sprintf("cable count %d does not divide into %d phases", e.Cables, e.Phases)
}
