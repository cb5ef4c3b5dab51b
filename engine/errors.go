package engine

import "fmt"

// LogicError indicates a programmer error: a caller asked the engine to do
// something that violates an Order invariant (overfilling, retagging a
// non-Market order, retagging with a non-finite price). Unlike an admission
// rejection, a LogicError always leaves the offending order's state
// unmodified and is meant to be surfaced, not silently swallowed.
type LogicError struct {
	OrderID OrderID
	Message string
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("order (%s): %s", e.OrderID, e.Message)
}

func newLogicError(id OrderID, format string, args ...any) *LogicError {
	return &LogicError{OrderID: id, Message: fmt.Sprintf(format, args...)}
}
