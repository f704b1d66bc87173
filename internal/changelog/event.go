// Package changelog records team-membership change events and tracks, per
// event, which downstream targets have finished propagating it.
package changelog

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the referenced change event does not exist.
	ErrNotFound = errors.New("change event not found")
	// ErrInvalidCase indicates an unknown membership-change case.
	ErrInvalidCase = errors.New("invalid membership-change case")
	// ErrInvalidTarget indicates an unknown propagation target.
	ErrInvalidTarget = errors.New("invalid propagation target")
)

// Case identifies the kind of membership mutation an event records.
type Case string

const (
	// CaseAdd records a user joining a team.
	CaseAdd Case = "add"
	// CaseDel records a user leaving or being removed from a team.
	CaseDel Case = "del"
	// CaseWaiting records a user placed on a team's waiting list.
	CaseWaiting Case = "waiting"
	// CaseDeny records a rejected membership application.
	CaseDeny Case = "deny"
)

// Valid reports whether c is a known membership-change case.
func (c Case) Valid() bool {
	switch c {
	case CaseAdd, CaseDel, CaseWaiting, CaseDeny:
		return true
	}
	return false
}

// Target identifies one downstream system that consumes change events.
type Target string

const (
	// TargetMail is the transactional-mail notification target.
	TargetMail Target = "mail"
	// TargetDirectoryTeam is the team mailing-group membership target.
	TargetDirectoryTeam Target = "directory_team"
	// TargetDirectoryStaff is the project staff mailing-group membership target.
	TargetDirectoryStaff Target = "directory_staff"
)

// Valid reports whether t is a known propagation target.
func (t Target) Valid() bool {
	switch t {
	case TargetMail, TargetDirectoryTeam, TargetDirectoryStaff:
		return true
	}
	return false
}

// TargetsFor returns the targets that must eventually complete for a case.
// Every case notifies by mail; only add and del touch directory groups.
func TargetsFor(c Case) []Target {
	switch c {
	case CaseAdd, CaseDel:
		return []Target{TargetMail, TargetDirectoryTeam, TargetDirectoryStaff}
	case CaseWaiting, CaseDeny:
		return []Target{TargetMail}
	}
	return nil
}

// Event is one recorded membership mutation awaiting propagation.
//
// Completion maps target names to done flags. A missing key means the target
// is still pending; a true value, once set, is never unset or overwritten.
type Event struct {
	ID         string
	ProjectID  string
	TeamID     string
	UserID     string
	Case       Case
	CreatedAt  time.Time
	Completion map[Target]bool
}

// Done reports whether the event has completed for the given target.
func (e Event) Done(target Target) bool {
	return e.Completion[target]
}
