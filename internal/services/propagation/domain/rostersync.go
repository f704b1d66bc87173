package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/eventcrew/secretariat/internal/chatplat"
	"github.com/eventcrew/secretariat/internal/roster"
)

// ChatPlatform is the chat-service surface the roster syncer drives.
type ChatPlatform interface {
	UserStats(ctx context.Context) (chatplat.Stats, error)
	ListUsers(ctx context.Context, fn func(chatplat.User) error) error
	InviteByEmail(ctx context.Context, teamID string, emails []string) error
	AddToChannel(ctx context.Context, channelID, memberID string) error
	SetPosition(ctx context.Context, memberID, position string) error
}

// ChatUserCache is the local mirror of the platform roster.
type ChatUserCache interface {
	UpsertUser(ctx context.Context, user chatplat.User) error
	CountUsers(ctx context.Context) (int, error)
	FindMemberID(ctx context.Context, userID string) (string, error)
}

// userCountSlack tolerates small census drift before a full re-enumeration.
const userCountSlack = 3

const (
	coordinatorTeamID = "coordinator"
	coordinatorLabel  = "🌟 coordinator"
)

// RosterSyncer keeps the chat platform's roster, channels, and position
// labels aligned with the current domain state. Its operations are not keyed
// off change-event flags: correctness means "external roster matches domain
// state now", so each run recomputes from live records.
type RosterSyncer struct {
	directory  roster.Directory
	platform   ChatPlatform
	cache      ChatUserCache
	chatTeamID string
	clock      func() time.Time
}

// NewRosterSyncer constructs the chat roster handler.
func NewRosterSyncer(directory roster.Directory, platform ChatPlatform, cache ChatUserCache, chatTeamID string) *RosterSyncer {
	return &RosterSyncer{
		directory:  directory,
		platform:   platform,
		cache:      cache,
		chatTeamID: chatTeamID,
		clock:      time.Now,
	}
}

// SyncUsers refreshes the local user cache when the platform census has grown
// past the cached count's slack, or unconditionally when force is set.
func (s *RosterSyncer) SyncUsers(ctx context.Context, force bool) error {
	if err := s.check(); err != nil {
		return err
	}
	stats, err := s.platform.UserStats(ctx)
	if err != nil {
		return fmt.Errorf("get user stats: %w", err)
	}
	cached, err := s.cache.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count cached users: %w", err)
	}
	if !force && cached-userCountSlack >= stats.TotalUsers {
		return nil
	}

	err = s.platform.ListUsers(ctx, func(user chatplat.User) error {
		return s.cache.UpsertUser(ctx, user)
	})
	if err != nil {
		return fmt.Errorf("enumerate platform users: %w", err)
	}
	return nil
}

// Invite resolves the given users' emails and submits one bulk invite.
// Users with no resolvable email are skipped.
func (s *RosterSyncer) Invite(ctx context.Context, userIDs []string) error {
	if err := s.check(); err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	infos, err := s.directory.UserInfo(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("resolve invitees: %w", err)
	}
	var emails []string
	for _, uid := range userIDs {
		if info, ok := infos[uid]; ok && info.Email != "" {
			emails = append(emails, info.Email)
		}
	}
	if len(emails) == 0 {
		return nil
	}
	if err := s.platform.InviteByEmail(ctx, s.chatTeamID, emails); err != nil {
		return fmt.Errorf("invite by email: %w", err)
	}
	return nil
}

// AddProjectMembers adds the given users to a project's channel. A project
// without a configured channel is a no-op; users without a resolvable
// platform member id are skipped.
func (s *RosterSyncer) AddProjectMembers(ctx context.Context, projectID string, userIDs []string) error {
	if err := s.check(); err != nil {
		return err
	}
	project, err := s.directory.Project(ctx, projectID)
	if err != nil {
		return fmt.Errorf("resolve project: %w", err)
	}
	if project.ChatChannelID == "" {
		return nil
	}
	return s.addMembersToChannel(ctx, project.ChatChannelID, userIDs)
}

// SyncChannelMembers adds every current chief and member of each future-dated
// project to the project's channel.
func (s *RosterSyncer) SyncChannelMembers(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	projects, err := s.futureProjects(ctx)
	if err != nil {
		return err
	}

	for _, project := range projects {
		if project.ChatChannelID == "" {
			continue
		}
		teams, err := s.directory.ActiveTeams(ctx, project.ProjectID)
		if err != nil {
			return fmt.Errorf("project %s: list teams: %w", project.ProjectID, err)
		}
		uids := map[string]struct{}{}
		for _, team := range teams {
			for _, uid := range team.Chiefs {
				uids[uid] = struct{}{}
			}
			for _, uid := range team.Members {
				uids[uid] = struct{}{}
			}
		}
		if err := s.addMembersToChannel(ctx, project.ChatChannelID, sortedKeys(uids)); err != nil {
			return fmt.Errorf("project %s: %w", project.ProjectID, err)
		}
	}
	return nil
}

// SyncPositions pushes a per-user position label onto the platform for each
// future-dated project. A user who is both chief and member of the same team
// is labeled only as its lead.
func (s *RosterSyncer) SyncPositions(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	projects, err := s.futureProjects(ctx)
	if err != nil {
		return err
	}

	for _, project := range projects {
		teams, err := s.directory.ActiveTeams(ctx, project.ProjectID)
		if err != nil {
			return fmt.Errorf("project %s: list teams: %w", project.ProjectID, err)
		}

		labels := map[string][]string{}
		var order []string
		appendLabel := func(uid, label string) {
			if _, seen := labels[uid]; !seen {
				order = append(order, uid)
			}
			labels[uid] = append(labels[uid], label)
		}
		for _, team := range teams {
			teamName := shortTeamName(team.Name)
			for _, chief := range team.Chiefs {
				if team.TeamID == coordinatorTeamID {
					appendLabel(chief, coordinatorLabel)
				} else {
					appendLabel(chief, "⭐️ lead of "+teamName)
				}
			}
			for _, member := range team.PlainMembers() {
				appendLabel(member, teamName+" (member)")
			}
		}

		for _, uid := range order {
			memberID, err := s.cache.FindMemberID(ctx, uid)
			if err != nil {
				return fmt.Errorf("project %s: resolve member %s: %w", project.ProjectID, uid, err)
			}
			if memberID == "" {
				continue
			}
			parts := append([]string{project.ProjectID}, labels[uid]...)
			parts = append(parts, "["+uid+"]")
			if err := s.platform.SetPosition(ctx, memberID, strings.Join(parts, " ")); err != nil {
				return fmt.Errorf("project %s: set position for %s: %w", project.ProjectID, uid, err)
			}
		}
	}
	return nil
}

func (s *RosterSyncer) addMembersToChannel(ctx context.Context, channelID string, userIDs []string) error {
	for _, uid := range userIDs {
		memberID, err := s.cache.FindMemberID(ctx, uid)
		if err != nil {
			return fmt.Errorf("resolve member %s: %w", uid, err)
		}
		if memberID == "" {
			continue
		}
		if err := s.platform.AddToChannel(ctx, channelID, memberID); err != nil {
			return fmt.Errorf("add %s to channel: %w", uid, err)
		}
	}
	return nil
}

func (s *RosterSyncer) futureProjects(ctx context.Context) ([]roster.Project, error) {
	projects, err := s.directory.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	now := s.clock()
	var future []roster.Project
	for _, project := range projects {
		if project.ActionDate.Before(now) {
			continue
		}
		future = append(future, project)
	}
	return future, nil
}

func (s *RosterSyncer) check() error {
	if s == nil || s.directory == nil || s.platform == nil || s.cache == nil {
		return Permanent(fmt.Errorf("roster syncer is not fully configured"))
	}
	return nil
}

// shortTeamName keeps the part of a team name before the first dash.
func shortTeamName(name string) string {
	short, _, _ := strings.Cut(name, "-")
	return strings.TrimSpace(short)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
