package bond

import (
	"errors"
	"fmt"
)

// Code classifies the unrecoverable topology failures.
type Code string

const (
	// CodeDuplicateBond marks a particle bonded to the same partner tag
	// twice. Only periodic wrap-around can produce it.
	CodeDuplicateBond Code = "DUPLICATE_BOND"

	// CodeAllocFailed marks storage growth that exceeded the configured
	// memory budget.
	CodeAllocFailed Code = "ALLOC_FAILED"

	// CodeSerializationMismatch marks a migration or checkpoint record
	// whose declared layout disagrees with its contents.
	CodeSerializationMismatch Code = "SERIALIZATION_MISMATCH"
)

// FatalError is an unrecoverable topology failure. There is no retry
// path: the partition that hits one aborts the run for the whole group.
type FatalError struct {
	Code    Code
	Message string
	Rank    int
	Tag     int64
	Err     error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FatalError) Unwrap() error { return e.Err }

// NewDuplicateBondError reports tag bonded twice to partner on rank.
func NewDuplicateBondError(rank int, tag, partner int64) *FatalError {
	return &FatalError{
		Code: CodeDuplicateBond,
		Rank: rank,
		Tag:  tag,
		Message: fmt.Sprintf(
			"particle %d bonds partner %d more than once; the periodic domain is smaller than twice the horizon",
			tag, partner),
	}
}

// NewAllocError reports storage growth denied by the memory budget.
func NewAllocError(message string) *FatalError {
	return &FatalError{Code: CodeAllocFailed, Message: message}
}

// NewSerializationError reports a corrupt migration or checkpoint record.
func NewSerializationError(message string) *FatalError {
	return &FatalError{Code: CodeSerializationMismatch, Message: message}
}

// IsDuplicateBond reports whether err carries CodeDuplicateBond.
func IsDuplicateBond(err error) bool { return hasCode(err, CodeDuplicateBond) }

// IsAllocFailed reports whether err carries CodeAllocFailed.
func IsAllocFailed(err error) bool { return hasCode(err, CodeAllocFailed) }

// IsSerializationMismatch reports whether err carries
// CodeSerializationMismatch.
func IsSerializationMismatch(err error) bool { return hasCode(err, CodeSerializationMismatch) }

func hasCode(err error, code Code) bool {
	var fe *FatalError
	return errors.As(err, &fe) && fe.Code == code
}
