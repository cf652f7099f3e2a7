package domain

import "time"

// OperatorStatus enumerates operator availability states.
type OperatorStatus string

const (
	OperatorStatusOnline  OperatorStatus = "ONLINE"
	OperatorStatusBusy    OperatorStatus = "BUSY"
	OperatorStatusOffline OperatorStatus = "OFFLINE"
)

// OperatorRole enumerates internal operator roles.
type OperatorRole string

const (
	OperatorRoleAgent OperatorRole = "AGENT"
	OperatorRoleAdmin OperatorRole = "ADMIN"
)

// Operator models a support staff member who handles chat sessions.
// CurrentLoad is owned by the capacity ledger; no other component writes it.
type Operator struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         OperatorRole
	Status       OperatorStatus
	MaxSessions  int
	CurrentLoad  int
	LastActive   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasSpareCapacity reports whether the operator can take another session.
func (o *Operator) HasSpareCapacity() bool {
	return o.CurrentLoad < o.MaxSessions
}

// Assignable reports whether the router may consider this operator for a
// waiting session.
func (o *Operator) Assignable() bool {
	return o.Status == OperatorStatusOnline && o.HasSpareCapacity()
}
