package domain

// Side represents the direction of a trade intent (BUY or SELL).
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// ExecutionStatus is the actuator outcome recorded for a dispatched signal.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "SUCCESS"
	StatusFailed  ExecutionStatus = "FAILED"
)

// ExecutionState is a step of the per-signal execution state machine.
type ExecutionState string

const (
	StatePending       ExecutionState = "PENDING"
	StateActuatorReady ExecutionState = "ACTUATOR_READY"
	StateDispatched    ExecutionState = "DISPATCHED"
	StateConfirmed     ExecutionState = "CONFIRMED"
	StateFailed        ExecutionState = "FAILED"
)

// Terminal reports whether no further transition is possible from s.
func (s ExecutionState) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// TimestampLayout is the fixed layout of the leading timestamp in source log lines.
const TimestampLayout = "2006-01-02 15:04:05"
