package service

import "rhythmhub/internal/model"

// transitionRule classifies one cell of the user state machine.
type transitionRule int

const (
	// ruleAllow lets the client make the transition.
	ruleAllow transitionRule = iota
	// ruleReject fails the request with ErrInvalidStateChange.
	ruleReject
	// ruleServerOnly marks a transition the server performs itself;
	// client requests for it are rejected.
	ruleServerOnly
	// ruleDrop swallows the request without error. Used for Idle
	// requests arriving while the user is mid-gameplay, which race
	// with a client-side un-ready.
	ruleDrop
)

var userTransitions = map[model.UserState]map[model.UserState]transitionRule{
	model.UserIdle: {
		model.UserReady:          ruleAllow,
		model.UserWaitingForLoad: ruleServerOnly,
		model.UserLoaded:         ruleReject,
		model.UserPlaying:        ruleServerOnly,
		model.UserFinishedPlay:   ruleReject,
		model.UserResults:        ruleServerOnly,
		model.UserSpectating:     ruleAllow,
	},
	model.UserReady: {
		model.UserIdle:           ruleAllow,
		model.UserWaitingForLoad: ruleServerOnly,
		model.UserLoaded:         ruleReject,
		model.UserPlaying:        ruleServerOnly,
		model.UserFinishedPlay:   ruleReject,
		model.UserResults:        ruleServerOnly,
		model.UserSpectating:     ruleAllow,
	},
	model.UserWaitingForLoad: {
		model.UserIdle:         ruleDrop,
		model.UserReady:        ruleReject,
		model.UserLoaded:       ruleAllow,
		model.UserPlaying:      ruleServerOnly,
		model.UserFinishedPlay: ruleReject,
		model.UserResults:      ruleServerOnly,
		model.UserSpectating:   ruleReject,
	},
	model.UserLoaded: {
		model.UserIdle:           ruleDrop,
		model.UserReady:          ruleReject,
		model.UserWaitingForLoad: ruleReject,
		model.UserPlaying:        ruleServerOnly,
		model.UserFinishedPlay:   ruleReject,
		model.UserResults:        ruleServerOnly,
		model.UserSpectating:     ruleReject,
	},
	model.UserPlaying: {
		model.UserIdle:           ruleDrop,
		model.UserReady:          ruleReject,
		model.UserWaitingForLoad: ruleReject,
		model.UserLoaded:         ruleReject,
		model.UserFinishedPlay:   ruleAllow,
		model.UserResults:        ruleServerOnly,
		model.UserSpectating:     ruleReject,
	},
	model.UserFinishedPlay: {
		model.UserIdle:           ruleAllow,
		model.UserReady:          ruleReject,
		model.UserWaitingForLoad: ruleReject,
		model.UserLoaded:         ruleReject,
		model.UserPlaying:        ruleReject,
		model.UserResults:        ruleServerOnly,
		model.UserSpectating:     ruleReject,
	},
	model.UserResults: {
		model.UserIdle:           ruleAllow,
		model.UserReady:          ruleAllow,
		model.UserWaitingForLoad: ruleReject,
		model.UserLoaded:         ruleReject,
		model.UserPlaying:        ruleReject,
		model.UserFinishedPlay:   ruleReject,
		model.UserSpectating:     ruleAllow,
	},
	model.UserSpectating: {
		model.UserIdle:           ruleAllow,
		model.UserReady:          ruleReject,
		model.UserWaitingForLoad: ruleReject,
		model.UserLoaded:         ruleReject,
		model.UserPlaying:        ruleReject,
		model.UserFinishedPlay:   ruleReject,
		model.UserResults:        ruleReject,
	},
}

// validateClientStateChange decides how a client-requested transition is
// handled. apply=false with a nil error means the request is dropped
// silently (either a no-op or a stale Idle request during gameplay).
func validateClientStateChange(from, to model.UserState) (apply bool, err error) {
	if from == to {
		return false, nil
	}
	rule, ok := userTransitions[from][to]
	if !ok {
		return false, ErrInvalidStateChange
	}
	switch rule {
	case ruleAllow:
		return true, nil
	case ruleDrop:
		return false, nil
	default:
		return false, ErrInvalidStateChange
	}
}
