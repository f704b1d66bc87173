package app

import (
	"encoding/json"
	"fmt"
)

// Payload carries trigger arguments. Triggers read only the fields they
// document; unknown fields are ignored so older producers stay compatible.
type Payload struct {
	ProjectID   string   `json:"project_id,omitempty"`
	TeamID      string   `json:"team_id,omitempty"`
	ToProjectID string   `json:"to_project_id,omitempty"`
	ToTeamID    string   `json:"to_team_id,omitempty"`
	UserIDs     []string `json:"user_ids,omitempty"`
	Force       bool     `json:"force,omitempty"`
	Title       string   `json:"title,omitempty"`
	Body        string   `json:"body,omitempty"`
}

// DecodePayload parses a JSON payload document. An empty document is a valid
// zero payload.
func DecodePayload(data []byte) (Payload, error) {
	var payload Payload
	if len(data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, fmt.Errorf("decode trigger payload: %w", err)
	}
	return payload, nil
}
