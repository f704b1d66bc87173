// Package sqlite provides the SQLite-backed roster directory.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/eventcrew/secretariat/internal/platform/storage/sqlitemigrate"
	"github.com/eventcrew/secretariat/internal/roster"
	"github.com/eventcrew/secretariat/internal/roster/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed project, team, and user lookups.
type Store struct {
	sqlDB *sql.DB
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a roster store at the provided path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutProject upserts one project row.
func (s *Store) PutProject(ctx context.Context, project roster.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	project.ProjectID = strings.TrimSpace(project.ProjectID)
	if project.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO projects (project_id, name, mailing_staff_group, mailing_leader_group, action_date, chat_channel_id)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (project_id) DO UPDATE SET
    name = excluded.name,
    mailing_staff_group = excluded.mailing_staff_group,
    mailing_leader_group = excluded.mailing_leader_group,
    action_date = excluded.action_date,
    chat_channel_id = excluded.chat_channel_id
`,
		project.ProjectID,
		project.Name,
		project.MailingStaffGroup,
		project.MailingLeaderGroup,
		project.ActionDate.UTC().UnixMilli(),
		project.ChatChannelID,
	)
	if err != nil {
		return fmt.Errorf("put project: %w", err)
	}
	return nil
}

// PutTeam upserts one team row.
func (s *Store) PutTeam(ctx context.Context, team roster.Team) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	team.ProjectID = strings.TrimSpace(team.ProjectID)
	team.TeamID = strings.TrimSpace(team.TeamID)
	if team.ProjectID == "" || team.TeamID == "" {
		return fmt.Errorf("project id and team id are required")
	}
	chiefs, err := marshalIDs(team.Chiefs)
	if err != nil {
		return err
	}
	members, err := marshalIDs(team.Members)
	if err != nil {
		return err
	}
	owners, err := marshalIDs(team.Owners)
	if err != nil {
		return err
	}
	disabled := 0
	if team.Disabled {
		disabled = 1
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO teams (project_id, team_id, name, chiefs_json, members_json, owners_json, mailing_group, disabled)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (project_id, team_id) DO UPDATE SET
    name = excluded.name,
    chiefs_json = excluded.chiefs_json,
    members_json = excluded.members_json,
    owners_json = excluded.owners_json,
    mailing_group = excluded.mailing_group,
    disabled = excluded.disabled
`,
		team.ProjectID, team.TeamID, team.Name, chiefs, members, owners, team.MailingGroup, disabled,
	)
	if err != nil {
		return fmt.Errorf("put team: %w", err)
	}
	return nil
}

// PutUser upserts one user row.
func (s *Store) PutUser(ctx context.Context, user roster.UserInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	user.UserID = strings.TrimSpace(user.UserID)
	if user.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (user_id, display_name, email)
VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    display_name = excluded.display_name,
    email = excluded.email
`, user.UserID, user.DisplayName, user.Email)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// Team returns one team of a project.
func (s *Store) Team(ctx context.Context, projectID, teamID string) (roster.Team, error) {
	if err := ctx.Err(); err != nil {
		return roster.Team{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT project_id, team_id, name, chiefs_json, members_json, owners_json, mailing_group, disabled
FROM teams
WHERE project_id = ? AND team_id = ?
`, strings.TrimSpace(projectID), strings.TrimSpace(teamID))
	team, err := scanTeam(row.Scan)
	if err == sql.ErrNoRows {
		return roster.Team{}, fmt.Errorf("%w: team %s/%s", roster.ErrNotFound, projectID, teamID)
	}
	if err != nil {
		return roster.Team{}, fmt.Errorf("get team: %w", err)
	}
	return team, nil
}

// Project returns one project.
func (s *Store) Project(ctx context.Context, projectID string) (roster.Project, error) {
	if err := ctx.Err(); err != nil {
		return roster.Project{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT project_id, name, mailing_staff_group, mailing_leader_group, action_date, chat_channel_id
FROM projects
WHERE project_id = ?
`, strings.TrimSpace(projectID))
	project, err := scanProject(row.Scan)
	if err == sql.ErrNoRows {
		return roster.Project{}, fmt.Errorf("%w: project %s", roster.ErrNotFound, projectID)
	}
	if err != nil {
		return roster.Project{}, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// Projects returns all projects.
func (s *Store) Projects(ctx context.Context) ([]roster.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT project_id, name, mailing_staff_group, mailing_leader_group, action_date, chat_channel_id
FROM projects
ORDER BY project_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []roster.Project
	for rows.Next() {
		project, err := scanProject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// ActiveTeams returns a project's non-disabled teams.
func (s *Store) ActiveTeams(ctx context.Context, projectID string) ([]roster.Team, error) {
	return s.listTeams(ctx, projectID, false)
}

// AllTeams returns a project's teams, disabled ones included.
func (s *Store) AllTeams(ctx context.Context, projectID string) ([]roster.Team, error) {
	return s.listTeams(ctx, projectID, true)
}

// UserInfo resolves display names and emails for the given user ids.
func (s *Store) UserInfo(ctx context.Context, userIDs []string) (map[string]roster.UserInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make(map[string]roster.UserInfo, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	placeholders := make([]string, 0, len(userIDs))
	args := make([]any, 0, len(userIDs))
	for _, uid := range userIDs {
		placeholders = append(placeholders, "?")
		args = append(args, strings.TrimSpace(uid))
	}
	query := fmt.Sprintf(
		"SELECT user_id, display_name, email FROM users WHERE user_id IN (%s)",
		strings.Join(placeholders, ", "))
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var info roster.UserInfo
		if err := rows.Scan(&info.UserID, &info.DisplayName, &info.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		result[info.UserID] = info
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return result, nil
}

// ParticipatesIn reports whether the user belongs to any active team of the
// project, as chief or member.
func (s *Store) ParticipatesIn(ctx context.Context, userID, projectID string) (bool, error) {
	teams, err := s.ActiveTeams(ctx, projectID)
	if err != nil {
		return false, err
	}
	userID = strings.TrimSpace(userID)
	for _, team := range teams {
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

func (s *Store) listTeams(ctx context.Context, projectID string, includeDisabled bool) ([]roster.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := `
SELECT project_id, team_id, name, chiefs_json, members_json, owners_json, mailing_group, disabled
FROM teams
WHERE project_id = ?
`
	if !includeDisabled {
		query += "  AND disabled = 0\n"
	}
	query += "ORDER BY team_id ASC"

	rows, err := s.sqlDB.QueryContext(ctx, query, strings.TrimSpace(projectID))
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []roster.Team
	for rows.Next() {
		team, err := scanTeam(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return teams, nil
}

func scanTeam(scan func(dest ...any) error) (roster.Team, error) {
	var team roster.Team
	var chiefs, members, owners string
	var disabled int
	if err := scan(
		&team.ProjectID,
		&team.TeamID,
		&team.Name,
		&chiefs,
		&members,
		&owners,
		&team.MailingGroup,
		&disabled,
	); err != nil {
		return roster.Team{}, err
	}
	if err := json.Unmarshal([]byte(chiefs), &team.Chiefs); err != nil {
		return roster.Team{}, fmt.Errorf("decode chiefs: %w", err)
	}
	if err := json.Unmarshal([]byte(members), &team.Members); err != nil {
		return roster.Team{}, fmt.Errorf("decode members: %w", err)
	}
	if err := json.Unmarshal([]byte(owners), &team.Owners); err != nil {
		return roster.Team{}, fmt.Errorf("decode owners: %w", err)
	}
	team.Disabled = disabled != 0
	return team, nil
}

func scanProject(scan func(dest ...any) error) (roster.Project, error) {
	var project roster.Project
	var actionDate int64
	if err := scan(
		&project.ProjectID,
		&project.Name,
		&project.MailingStaffGroup,
		&project.MailingLeaderGroup,
		&actionDate,
		&project.ChatChannelID,
	); err != nil {
		return roster.Project{}, err
	}
	project.ActionDate = fromMillis(actionDate)
	return project, nil
}

func marshalIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode id list: %w", err)
	}
	return string(encoded), nil
}
