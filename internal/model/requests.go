package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MatchRequestType tags a client-issued match request.
type MatchRequestType string

const (
	RequestStartCountdown MatchRequestType = "start_countdown"
	RequestStopCountdown  MatchRequestType = "stop_countdown"
	RequestChangeTeam     MatchRequestType = "change_team"
)

// MatchRequest is the tagged envelope for SendMatchRequest payloads.
type MatchRequest struct {
	Type    MatchRequestType `json:"type"`
	Payload json.RawMessage  `json:"payload,omitempty"`
}

// StartCountdownRequest asks the server to start a match-start countdown.
type StartCountdownRequest struct {
	Duration time.Duration `json:"duration"`
}

// ChangeTeamRequest asks to move the sender to another team.
type ChangeTeamRequest struct {
	TeamID int `json:"teamId"`
}

// DecodePayload unmarshals the request payload into v.
func (r *MatchRequest) DecodePayload(v any) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("request %s has no payload", r.Type)
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", r.Type, err)
	}
	return nil
}
