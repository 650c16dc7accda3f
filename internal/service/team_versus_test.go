package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rhythmhub/internal/model"
)

type captureBroadcaster struct {
	nopBroadcaster
	events   []model.EventType
	payloads []any
}

func (b *captureBroadcaster) BroadcastToGroup(group string, event model.EventType, payload any) {
	b.events = append(b.events, event)
	b.payloads = append(b.payloads, payload)
}

func teamRoom(users ...*model.RoomUser) *ServerRoom {
	return &ServerRoom{ID: 1, Users: users}
}

func teamUser(id int64, team int) *model.RoomUser {
	return &model.RoomUser{UserID: id, TeamState: &model.TeamState{TeamID: team}}
}

func changeTeamRequest(t *testing.T, teamID int) *model.MatchRequest {
	t.Helper()
	payload, err := json.Marshal(model.ChangeTeamRequest{TeamID: teamID})
	require.NoError(t, err)
	return &model.MatchRequest{Type: model.RequestChangeTeam, Payload: payload}
}

func TestTeamVersusJoinBalancesTeams(t *testing.T) {
	tests := []struct {
		name     string
		existing []*model.RoomUser
		want     int
	}{
		{"empty room goes to team zero", nil, 0},
		{"second user balances to team one", []*model.RoomUser{teamUser(1, 0)}, 1},
		{"tie breaks to the lower team id", []*model.RoomUser{teamUser(1, 0), teamUser(2, 1)}, 0},
		{"lopsided room fills the smaller team", []*model.RoomUser{teamUser(1, 0), teamUser(2, 0), teamUser(3, 1)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &captureBroadcaster{}
			h := newTeamVersusHandler(b)

			joining := &model.RoomUser{UserID: 99}
			room := teamRoom(append(tt.existing, joining)...)
			h.OnJoin(room, joining)

			require.NotNil(t, joining.TeamState)
			assert.Equal(t, tt.want, joining.TeamState.TeamID)
			require.Len(t, b.events, 1)
			assert.Equal(t, model.EventMatchUserState, b.events[0])
		})
	}
}

func TestTeamVersusChangeTeam(t *testing.T) {
	b := &captureBroadcaster{}
	h := newTeamVersusHandler(b)

	user := teamUser(5, 0)
	room := teamRoom(user)

	err := h.HandleRequest(room, user, changeTeamRequest(t, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, user.TeamState.TeamID)

	require.Len(t, b.payloads, 1)
	payload, ok := b.payloads[0].(*model.MatchUserStatePayload)
	require.True(t, ok)
	assert.Equal(t, int64(5), payload.UserID)
	assert.Equal(t, 1, payload.TeamID)
}

func TestTeamVersusRejectsUnknownTeam(t *testing.T) {
	b := &captureBroadcaster{}
	h := newTeamVersusHandler(b)

	user := teamUser(5, 0)
	room := teamRoom(user)

	err := h.HandleRequest(room, user, changeTeamRequest(t, 7))
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 0, user.TeamState.TeamID)
	assert.Empty(t, b.events)
}

func TestTeamVersusRejectsForeignRequest(t *testing.T) {
	h := newTeamVersusHandler(&captureBroadcaster{})

	user := teamUser(5, 0)
	err := h.HandleRequest(teamRoom(user), user, &model.MatchRequest{Type: model.RequestStartCountdown})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestHeadToHeadClearsTeamState(t *testing.T) {
	h := newMatchTypeHandler(model.MatchHeadToHead, &captureBroadcaster{})

	user := teamUser(5, 1)
	h.OnJoin(teamRoom(user), user)
	assert.Nil(t, user.TeamState)

	err := h.HandleRequest(teamRoom(user), user, changeTeamRequest(t, 0))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUnknownMatchTypeFallsBackToHeadToHead(t *testing.T) {
	h := newMatchTypeHandler(model.MatchType("unheard_of"), &captureBroadcaster{})
	_, ok := h.(headToHeadHandler)
	assert.True(t, ok)
}
