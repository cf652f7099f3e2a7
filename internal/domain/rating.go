package domain

import "time"

// Rating is the terminal feedback for a closed session. At most one per
// session; created once, immutable.
type Rating struct {
	ID          string
	SessionID   string
	RequesterID string
	OperatorID  string
	Value       int
	Comment     string
	CreatedAt   time.Time
}
