package domain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eventcrew/secretariat/internal/changelog"
	"github.com/eventcrew/secretariat/internal/chatplat"
	"github.com/eventcrew/secretariat/internal/mailout"
	"github.com/eventcrew/secretariat/internal/roster"
	"github.com/eventcrew/secretariat/internal/services/propagation/storage"
)

// fakeLog is an in-memory change-event log with the same flag semantics as
// the sqlite store.
type fakeLog struct {
	mu     sync.Mutex
	events []changelog.Event
}

func newFakeLog(events ...changelog.Event) *fakeLog {
	log := &fakeLog{}
	for _, event := range events {
		if event.Completion == nil {
			event.Completion = map[changelog.Target]bool{}
		}
		log.events = append(log.events, event)
	}
	return log
}

func (l *fakeLog) AppendEvent(_ context.Context, event changelog.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if event.Completion == nil {
		event.Completion = map[changelog.Target]bool{}
	}
	l.events = append(l.events, event)
	return nil
}

func (l *fakeLog) ListPending(_ context.Context, target changelog.Target, cases []changelog.Case) ([]changelog.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	wanted := map[changelog.Case]struct{}{}
	for _, c := range cases {
		wanted[c] = struct{}{}
	}
	var pending []changelog.Event
	for _, event := range l.events {
		if _, ok := wanted[event.Case]; !ok {
			continue
		}
		if event.Completion[target] {
			continue
		}
		copied := event
		copied.Completion = map[changelog.Target]bool{}
		for k, v := range event.Completion {
			copied.Completion[k] = v
		}
		pending = append(pending, copied)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (l *fakeLog) MarkDone(_ context.Context, eventID string, target changelog.Target) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.events {
		if l.events[i].ID == eventID {
			l.events[i].Completion[target] = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s", changelog.ErrNotFound, eventID)
}

func (l *fakeLog) completion(eventID string) map[changelog.Target]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, event := range l.events {
		if event.ID == eventID {
			return event.Completion
		}
	}
	return nil
}

// fakeDirectory serves canned roster records.
type fakeDirectory struct {
	teams    map[string]roster.Team
	projects map[string]roster.Project
	users    map[string]roster.UserInfo
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		teams:    map[string]roster.Team{},
		projects: map[string]roster.Project{},
		users:    map[string]roster.UserInfo{},
	}
}

func teamKey(projectID, teamID string) string {
	return projectID + "/" + teamID
}

func (d *fakeDirectory) putTeam(team roster.Team) {
	d.teams[teamKey(team.ProjectID, team.TeamID)] = team
}

func (d *fakeDirectory) Team(_ context.Context, projectID, teamID string) (roster.Team, error) {
	team, ok := d.teams[teamKey(projectID, teamID)]
	if !ok {
		return roster.Team{}, fmt.Errorf("%w: team %s/%s", roster.ErrNotFound, projectID, teamID)
	}
	return team, nil
}

func (d *fakeDirectory) Project(_ context.Context, projectID string) (roster.Project, error) {
	project, ok := d.projects[projectID]
	if !ok {
		return roster.Project{}, fmt.Errorf("%w: project %s", roster.ErrNotFound, projectID)
	}
	return project, nil
}

func (d *fakeDirectory) Projects(_ context.Context) ([]roster.Project, error) {
	var projects []roster.Project
	for _, project := range d.projects {
		projects = append(projects, project)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].ProjectID < projects[j].ProjectID
	})
	return projects, nil
}

func (d *fakeDirectory) ActiveTeams(_ context.Context, projectID string) ([]roster.Team, error) {
	return d.listTeams(projectID, false), nil
}

func (d *fakeDirectory) AllTeams(_ context.Context, projectID string) ([]roster.Team, error) {
	return d.listTeams(projectID, true), nil
}

func (d *fakeDirectory) listTeams(projectID string, includeDisabled bool) []roster.Team {
	var teams []roster.Team
	for _, team := range d.teams {
		if team.ProjectID != projectID {
			continue
		}
		if team.Disabled && !includeDisabled {
			continue
		}
		teams = append(teams, team)
	}
	sort.Slice(teams, func(i, j int) bool {
		return teams[i].TeamID < teams[j].TeamID
	})
	return teams
}

func (d *fakeDirectory) UserInfo(_ context.Context, userIDs []string) (map[string]roster.UserInfo, error) {
	result := map[string]roster.UserInfo{}
	for _, uid := range userIDs {
		if info, ok := d.users[uid]; ok {
			result[uid] = info
		}
	}
	return result, nil
}

func (d *fakeDirectory) ParticipatesIn(_ context.Context, userID, projectID string) (bool, error) {
	for _, team := range d.listTeams(projectID, false) {
		for _, uid := range team.Chiefs {
			if uid == userID {
				return true, nil
			}
		}
		for _, uid := range team.Members {
			if uid == userID {
				return true, nil
			}
		}
	}
	return false, nil
}

// fakeOutbox collects enqueued and delivered outbox messages.
type fakeOutbox struct {
	mu           sync.Mutex
	messages     []storage.OutboxMessage
	markSentErrs map[string]error
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{markSentErrs: map[string]error{}}
}

func (o *fakeOutbox) EnqueueMail(_ context.Context, message storage.OutboxMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.messages {
		if message.EventID != "" && existing.EventID == message.EventID && existing.ToEmail == message.ToEmail {
			return nil
		}
	}
	o.messages = append(o.messages, message)
	return nil
}

func (o *fakeOutbox) ListPendingMail(_ context.Context, limit int) ([]storage.OutboxMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var pending []storage.OutboxMessage
	for _, message := range o.messages {
		if message.Sent {
			continue
		}
		pending = append(pending, message)
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (o *fakeOutbox) MarkMailSent(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.markSentErrs[id]; err != nil {
		delete(o.markSentErrs, id)
		return err
	}
	for i := range o.messages {
		if o.messages[i].ID == id {
			o.messages[i].Sent = true
			return nil
		}
	}
	return fmt.Errorf("outbox message %s not found", id)
}

func (o *fakeOutbox) pendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	count := 0
	for _, message := range o.messages {
		if !message.Sent {
			count++
		}
	}
	return count
}

// fakeSubmitter records submissions and serves scripted results.
type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []mailout.Message
	accepted  bool
	err       error
}

func (s *fakeSubmitter) Submit(_ context.Context, message mailout.Message) (mailout.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return mailout.Result{}, s.err
	}
	s.submitted = append(s.submitted, message)
	if !s.accepted {
		return mailout.Result{Accepted: false, ProviderStatus: "throttled"}, nil
	}
	return mailout.Result{Accepted: true, ProviderStatus: "ok"}, nil
}

// fakeGroups records directory-group mutations.
type fakeGroups struct {
	mu      sync.Mutex
	added   []string
	removed []string
}

func groupCall(group, email string) string {
	return group + "|" + email
}

func (g *fakeGroups) AddMember(_ context.Context, group, email string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.added = append(g.added, groupCall(group, email))
	return nil
}

func (g *fakeGroups) RemoveMember(_ context.Context, group, email string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removed = append(g.removed, groupCall(group, email))
	return nil
}

// fakePlatform records chat-platform calls.
type fakePlatform struct {
	mu           sync.Mutex
	stats        chatplat.Stats
	users        []chatplat.User
	listCalls    int
	invited      [][]string
	channelAdds  []string
	positions    map[string]string
	inviteTeamID string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{positions: map[string]string{}}
}

func (p *fakePlatform) UserStats(_ context.Context) (chatplat.Stats, error) {
	return p.stats, nil
}

func (p *fakePlatform) ListUsers(_ context.Context, fn func(chatplat.User) error) error {
	p.mu.Lock()
	p.listCalls++
	users := append([]chatplat.User{}, p.users...)
	p.mu.Unlock()
	for _, user := range users {
		if err := fn(user); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakePlatform) InviteByEmail(_ context.Context, teamID string, emails []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inviteTeamID = teamID
	p.invited = append(p.invited, append([]string{}, emails...))
	return nil
}

func (p *fakePlatform) AddToChannel(_ context.Context, channelID, memberID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channelAdds = append(p.channelAdds, channelID+"|"+memberID)
	return nil
}

func (p *fakePlatform) SetPosition(_ context.Context, memberID, position string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[memberID] = position
	return nil
}

// fakeCache maps user ids to member ids and counts cached users.
type fakeCache struct {
	mu      sync.Mutex
	count   int
	links   map[string]string
	upserts []chatplat.User
}

func newFakeCache() *fakeCache {
	return &fakeCache{links: map[string]string{}}
}

func (c *fakeCache) UpsertUser(_ context.Context, user chatplat.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upserts = append(c.upserts, user)
	return nil
}

func (c *fakeCache) CountUsers(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count, nil
}

func (c *fakeCache) FindMemberID(_ context.Context, userID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.links[userID], nil
}

func eventAt(id string, caseKind changelog.Case, offset time.Duration) changelog.Event {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return changelog.Event{
		ID:        id,
		ProjectID: "proj-1",
		TeamID:    "logistics",
		UserID:    "uid-1",
		Case:      caseKind,
		CreatedAt: base.Add(offset),
	}
}
