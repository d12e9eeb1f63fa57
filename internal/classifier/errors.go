package classifier

import "fmt"

// Error represents a failed classifier call
type Error struct {
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("classifier %s failed: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("classifier %s failed: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
