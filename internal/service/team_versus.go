package service

import (
	"rhythmhub/internal/model"
)

// teamVersusTeams are the two team ids a room always carries.
var teamVersusTeams = []int{0, 1}

// teamVersusHandler splits the room into two fixed teams. New users are
// assigned to the smaller team, ties broken by the lowest team id.
type teamVersusHandler struct {
	broadcaster Broadcaster
}

func newTeamVersusHandler(b Broadcaster) *teamVersusHandler {
	return &teamVersusHandler{broadcaster: b}
}

func (h *teamVersusHandler) OnJoin(room *ServerRoom, user *model.RoomUser) {
	user.TeamState = &model.TeamState{TeamID: h.smallestTeam(room, user)}
	h.broadcastTeam(room, user)
}

func (h *teamVersusHandler) OnLeave(room *ServerRoom, user *model.RoomUser) {}

func (h *teamVersusHandler) HandleRequest(room *ServerRoom, user *model.RoomUser, req *model.MatchRequest) error {
	if req.Type != model.RequestChangeTeam {
		return ErrInvalidState
	}

	var change model.ChangeTeamRequest
	if err := req.DecodePayload(&change); err != nil {
		return ErrInvalidState
	}
	if !h.teamExists(change.TeamID) {
		return ErrInvalidState
	}

	user.TeamState = &model.TeamState{TeamID: change.TeamID}
	h.broadcastTeam(room, user)
	return nil
}

func (h *teamVersusHandler) teamExists(teamID int) bool {
	for _, id := range teamVersusTeams {
		if id == teamID {
			return true
		}
	}
	return false
}

// smallestTeam picks the team with the fewest members, not counting the
// joining user.
func (h *teamVersusHandler) smallestTeam(room *ServerRoom, joining *model.RoomUser) int {
	counts := make(map[int]int, len(teamVersusTeams))
	for _, u := range room.Users {
		if u == joining || u.TeamState == nil {
			continue
		}
		counts[u.TeamState.TeamID]++
	}

	best := teamVersusTeams[0]
	for _, id := range teamVersusTeams[1:] {
		if counts[id] < counts[best] {
			best = id
		}
	}
	return best
}

func (h *teamVersusHandler) broadcastTeam(room *ServerRoom, user *model.RoomUser) {
	h.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventMatchUserState, &model.MatchUserStatePayload{
		UserID: user.UserID,
		TeamID: user.TeamState.TeamID,
	})
}
