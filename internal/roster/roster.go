// Package roster exposes read-only team, project, and user lookups used to
// resolve a change event's context. The back-office CRUD owns these records;
// the propagation engine only queries them.
package roster

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a referenced team, project, or user does not exist.
// A change event may legitimately dangle after the referenced entity is
// deleted; callers surface this as an invocation failure.
var ErrNotFound = errors.New("roster record not found")

// Team is one volunteer team inside a project.
type Team struct {
	ProjectID    string
	TeamID       string
	Name         string
	Chiefs       []string
	Members      []string
	Owners       []string
	MailingGroup string
	Disabled     bool
}

// PlainMembers returns the team's members with chiefs removed, preserving
// member order. A user listed both as chief and member counts only as chief.
func (t Team) PlainMembers() []string {
	if len(t.Members) == 0 {
		return nil
	}
	chiefs := make(map[string]struct{}, len(t.Chiefs))
	for _, uid := range t.Chiefs {
		chiefs[uid] = struct{}{}
	}
	var plain []string
	for _, uid := range t.Members {
		if _, isChief := chiefs[uid]; isChief {
			continue
		}
		plain = append(plain, uid)
	}
	return plain
}

// Project is one organized event edition.
type Project struct {
	ProjectID          string
	Name               string
	MailingStaffGroup  string
	MailingLeaderGroup string
	ActionDate         time.Time
	ChatChannelID      string
}

// UserInfo is the resolved identity of one user.
type UserInfo struct {
	UserID      string
	DisplayName string
	Email       string
}

// Directory resolves change-event context. Lookups of deleted entities fail
// with ErrNotFound.
type Directory interface {
	// Team returns one team of a project.
	Team(ctx context.Context, projectID, teamID string) (Team, error)

	// Project returns one project.
	Project(ctx context.Context, projectID string) (Project, error)

	// Projects returns all projects.
	Projects(ctx context.Context) ([]Project, error)

	// ActiveTeams returns a project's non-disabled teams.
	ActiveTeams(ctx context.Context, projectID string) ([]Team, error)

	// AllTeams returns a project's teams, disabled ones included.
	AllTeams(ctx context.Context, projectID string) ([]Team, error)

	// UserInfo resolves display names and emails for the given user ids.
	// Unknown ids are absent from the result, not an error.
	UserInfo(ctx context.Context, userIDs []string) (map[string]UserInfo, error)

	// ParticipatesIn reports whether the user is a chief or member of any
	// active team of the project.
	ParticipatesIn(ctx context.Context, userID, projectID string) (bool, error)
}
