package service

import (
	"rhythmhub/internal/model"
)

// matchTypeHandler is the per-room strategy hook for match-type specific
// behaviour. Implementations are called with the room lock held.
type matchTypeHandler interface {
	OnJoin(room *ServerRoom, user *model.RoomUser)
	OnLeave(room *ServerRoom, user *model.RoomUser)
	HandleRequest(room *ServerRoom, user *model.RoomUser, req *model.MatchRequest) error
}

// newMatchTypeHandler builds the strategy for a match type. Unknown
// types fall back to head-to-head.
func newMatchTypeHandler(t model.MatchType, b Broadcaster) matchTypeHandler {
	switch t {
	case model.MatchTeamVersus:
		return newTeamVersusHandler(b)
	default:
		return headToHeadHandler{}
	}
}

// headToHeadHandler is the free-for-all strategy: no per-user match
// state and no supported match requests.
type headToHeadHandler struct{}

func (headToHeadHandler) OnJoin(room *ServerRoom, user *model.RoomUser) {
	user.TeamState = nil
}

func (headToHeadHandler) OnLeave(room *ServerRoom, user *model.RoomUser) {}

func (headToHeadHandler) HandleRequest(room *ServerRoom, user *model.RoomUser, req *model.MatchRequest) error {
	return ErrInvalidState
}
