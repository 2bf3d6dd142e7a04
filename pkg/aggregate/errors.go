package aggregate

import (
	"errors"
	"fmt"
)

// DataInsufficientError reports an aggregate that is mathematically undefined
// for the resolved snapshot set, e.g. concentration over a zero total. It is
// reported to the caller, not fatal.
type DataInsufficientError struct {
	Reason string
}

func (e *DataInsufficientError) Error() string {
	return fmt.Sprintf("insufficient data: %s", e.Reason)
}

// IsDataInsufficient reports whether err is (or wraps) a DataInsufficientError.
func IsDataInsufficient(err error) bool {
	var de *DataInsufficientError
	return errors.As(err, &de)
}
