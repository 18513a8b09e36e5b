package container

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrCircularAlias     = errors.New("container: circular alias")
	ErrBindingResolution = errors.New("container: binding resolution failed")
	ErrEntryNotFound     = errors.New("container: entry not found")
)

// CircularAliasError is returned when an alias chain loops back on itself.
type CircularAliasError struct {
	Alias string
	Chain []string
}

func (e *CircularAliasError) Error() string {
	if len(e.Chain) == 0 {
		return fmt.Sprintf("container: circular alias reference detected for [%s]", e.Alias)
	}
	return fmt.Sprintf("container: circular alias reference detected for [%s] (%s)",
		e.Alias, strings.Join(e.Chain, " -> "))
}

func (e *CircularAliasError) Is(target error) bool { return target == ErrCircularAlias }

// BindingResolutionError is returned when a concrete cannot be built:
// an unresolvable parameter, a non-instantiable target or a dependency cycle.
type BindingResolutionError struct {
	Abstract string
	Reason   string
	Err      error
}

func (e *BindingResolutionError) Error() string {
	msg := fmt.Sprintf("container: unable to resolve [%s]", e.Abstract)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BindingResolutionError) Unwrap() error { return e.Err }

func (e *BindingResolutionError) Is(target error) bool { return target == ErrBindingResolution }

// EntryNotFoundError is returned by Get when an abstract is neither bound nor
// a registered, buildable type.
type EntryNotFoundError struct {
	Abstract string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("container: no entry or registered type found for [%s]", e.Abstract)
}

func (e *EntryNotFoundError) Is(target error) bool { return target == ErrEntryNotFound }

// isContainerError reports whether err already carries container context and
// should be passed through unwrapped.
func isContainerError(err error) bool {
	return errors.Is(err, ErrCircularAlias) ||
		errors.Is(err, ErrBindingResolution) ||
		errors.Is(err, ErrEntryNotFound)
}
