package model

import "time"

// Role is the privilege level of an actor.
type Role string

const (
	// RoleAdmin may run privileged operations such as snapshot import.
	RoleAdmin Role = "admin"
	// RoleClerk may record and correct transactions.
	RoleClerk Role = "clerk"
)

// Actor is whoever is performing an operation.
type Actor struct {
	ID    string
	Label string
	Role  Role
}

// ActivityEntry is one append-only audit record.
type ActivityEntry struct {
	Timestamp   time.Time
	ID          string
	ActorID     string
	ActorLabel  string
	Description string
}
