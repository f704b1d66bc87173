package domain

import (
	"context"
	"fmt"

	"github.com/eventcrew/secretariat/internal/changelog"
	"github.com/eventcrew/secretariat/internal/roster"
)

// GroupDirectory mutates external directory-group membership by email.
type GroupDirectory interface {
	AddMember(ctx context.Context, group, email string) error
	RemoveMember(ctx context.Context, group, email string) error
}

// GroupSyncer propagates add and del events to the directory-group service.
// The team-group and staff-group passes are independent targets: each is
// queried and marked separately, so a failure in one never blocks the other.
type GroupSyncer struct {
	log       changelog.Log
	directory roster.Directory
	groups    GroupDirectory
}

// NewGroupSyncer constructs the directory-group handler.
func NewGroupSyncer(log changelog.Log, directory roster.Directory, groups GroupDirectory) *GroupSyncer {
	return &GroupSyncer{log: log, directory: directory, groups: groups}
}

var groupSyncCases = []changelog.Case{changelog.CaseAdd, changelog.CaseDel}

// SyncMemberChanges runs the team-group pass followed by the staff-group pass.
func (s *GroupSyncer) SyncMemberChanges(ctx context.Context) error {
	if err := s.SyncTeamGroups(ctx); err != nil {
		return err
	}
	return s.SyncStaffGroups(ctx)
}

// SyncTeamGroups applies pending events to each team's mailing group. A team
// without a configured group completes the event with no external call.
func (s *GroupSyncer) SyncTeamGroups(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	events, err := s.log.ListPending(ctx, changelog.TargetDirectoryTeam, groupSyncCases)
	if err != nil {
		return fmt.Errorf("list pending team-group events: %w", err)
	}

	for _, event := range events {
		team, err := s.directory.Team(ctx, event.ProjectID, event.TeamID)
		if err != nil {
			return fmt.Errorf("event %s: resolve team: %w", event.ID, err)
		}
		if team.MailingGroup == "" {
			if err := s.log.MarkDone(ctx, event.ID, changelog.TargetDirectoryTeam); err != nil {
				return fmt.Errorf("event %s: mark done: %w", event.ID, err)
			}
			continue
		}

		email, err := s.memberEmail(ctx, event.UserID)
		if err != nil {
			return fmt.Errorf("event %s: %w", event.ID, err)
		}
		switch event.Case {
		case changelog.CaseAdd:
			err = s.groups.AddMember(ctx, team.MailingGroup, email)
		case changelog.CaseDel:
			err = s.groups.RemoveMember(ctx, team.MailingGroup, email)
		}
		if err != nil {
			return fmt.Errorf("event %s: sync team group: %w", event.ID, err)
		}
		if err := s.log.MarkDone(ctx, event.ID, changelog.TargetDirectoryTeam); err != nil {
			return fmt.Errorf("event %s: mark done: %w", event.ID, err)
		}
	}
	return nil
}

// SyncStaffGroups applies pending events to each project's staff group. On
// del, removal is skipped while the user still belongs to another active team
// of the project; the event completes either way, because the flag tracks the
// event's obligation, not whether a removal occurred.
func (s *GroupSyncer) SyncStaffGroups(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	events, err := s.log.ListPending(ctx, changelog.TargetDirectoryStaff, groupSyncCases)
	if err != nil {
		return fmt.Errorf("list pending staff-group events: %w", err)
	}

	for _, event := range events {
		project, err := s.directory.Project(ctx, event.ProjectID)
		if err != nil {
			return fmt.Errorf("event %s: resolve project: %w", event.ID, err)
		}
		if project.MailingStaffGroup == "" {
			if err := s.log.MarkDone(ctx, event.ID, changelog.TargetDirectoryStaff); err != nil {
				return fmt.Errorf("event %s: mark done: %w", event.ID, err)
			}
			continue
		}

		email, err := s.memberEmail(ctx, event.UserID)
		if err != nil {
			return fmt.Errorf("event %s: %w", event.ID, err)
		}
		switch event.Case {
		case changelog.CaseAdd:
			if err := s.groups.AddMember(ctx, project.MailingStaffGroup, email); err != nil {
				return fmt.Errorf("event %s: sync staff group: %w", event.ID, err)
			}
		case changelog.CaseDel:
			stillActive, err := s.directory.ParticipatesIn(ctx, event.UserID, event.ProjectID)
			if err != nil {
				return fmt.Errorf("event %s: check participation: %w", event.ID, err)
			}
			if !stillActive {
				if err := s.groups.RemoveMember(ctx, project.MailingStaffGroup, email); err != nil {
					return fmt.Errorf("event %s: sync staff group: %w", event.ID, err)
				}
			}
		}
		if err := s.log.MarkDone(ctx, event.ID, changelog.TargetDirectoryStaff); err != nil {
			return fmt.Errorf("event %s: mark done: %w", event.ID, err)
		}
	}
	return nil
}

// SyncTeamMembers pushes one team's whole roster into a mailing group. When
// redirect is non-nil the members are added to the redirect team's group
// instead; a missing group is a no-op.
func (s *GroupSyncer) SyncTeamMembers(ctx context.Context, projectID, teamID string, redirect *roster.Team) error {
	if err := s.check(); err != nil {
		return err
	}
	team, err := s.directory.Team(ctx, projectID, teamID)
	if err != nil {
		return fmt.Errorf("resolve team: %w", err)
	}

	group := team.MailingGroup
	if redirect != nil {
		target, err := s.directory.Team(ctx, redirect.ProjectID, redirect.TeamID)
		if err != nil {
			return fmt.Errorf("resolve redirect team: %w", err)
		}
		group = target.MailingGroup
	}
	if group == "" {
		return nil
	}

	uids := append(append([]string{}, team.Chiefs...), team.Members...)
	infos, err := s.directory.UserInfo(ctx, uids)
	if err != nil {
		return fmt.Errorf("resolve members: %w", err)
	}
	for _, info := range infos {
		if info.Email == "" {
			continue
		}
		if err := s.groups.AddMember(ctx, group, info.Email); err != nil {
			return fmt.Errorf("add %s to %s: %w", info.UserID, group, err)
		}
	}
	return nil
}

// SyncProjectLeaders pushes every team chief of a project, disabled teams
// included, into the project's leader mailing group.
func (s *GroupSyncer) SyncProjectLeaders(ctx context.Context, projectID string) error {
	if err := s.check(); err != nil {
		return err
	}
	project, err := s.directory.Project(ctx, projectID)
	if err != nil {
		return fmt.Errorf("resolve project: %w", err)
	}
	if project.MailingLeaderGroup == "" {
		return nil
	}

	teams, err := s.directory.AllTeams(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list teams: %w", err)
	}
	var chiefs []string
	for _, team := range teams {
		chiefs = append(chiefs, team.Chiefs...)
	}

	infos, err := s.directory.UserInfo(ctx, chiefs)
	if err != nil {
		return fmt.Errorf("resolve chiefs: %w", err)
	}
	for _, info := range infos {
		if info.Email == "" {
			continue
		}
		if err := s.groups.AddMember(ctx, project.MailingLeaderGroup, info.Email); err != nil {
			return fmt.Errorf("add %s to %s: %w", info.UserID, project.MailingLeaderGroup, err)
		}
	}
	return nil
}

func (s *GroupSyncer) memberEmail(ctx context.Context, userID string) (string, error) {
	infos, err := s.directory.UserInfo(ctx, []string{userID})
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}
	info, ok := infos[userID]
	if !ok || info.Email == "" {
		return "", fmt.Errorf("resolve user %s email: %w", userID, roster.ErrNotFound)
	}
	return info.Email, nil
}

func (s *GroupSyncer) check() error {
	if s == nil || s.log == nil || s.directory == nil || s.groups == nil {
		return Permanent(fmt.Errorf("group syncer is not fully configured"))
	}
	return nil
}
