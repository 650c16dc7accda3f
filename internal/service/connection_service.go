package service

import (
	"fmt"
	"log"

	"rhythmhub/internal/entity"
)

// HubKind names one of the hub endpoints a client instance may open.
type HubKind string

const (
	HubMultiplayer HubKind = "multiplayer"
	HubSpectator   HubKind = "spectator"
	HubMetadata    HubKind = "metadata"
)

// ConnectionState tracks, per user, which hub connections belong to the
// active client instance. The limiter is its only writer.
type ConnectionState struct {
	TokenID     string
	Connections map[HubKind]string
}

// ConnectionService enforces single-instance semantics per user across
// hub endpoints: a connect from a new client instance supersedes every
// connection of the old one.
type ConnectionService struct {
	states      *entity.Store[ConnectionState]
	broadcaster Broadcaster
}

// NewConnectionService creates a new connection service
func NewConnectionService(states *entity.Store[ConnectionState]) *ConnectionService {
	return &ConnectionService{states: states}
}

// SetBroadcaster sets the broadcaster used to ask stale connections to
// disconnect.
func (s *ConnectionService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Connected registers a hub connection for a user. A connect with the
// stored token id adds or replaces that hub's slot; a connect with a new
// token id supersedes the previous client instance, requesting a
// disconnect on each of its connections.
func (s *ConnectionService) Connected(userID int64, tokenID string, kind HubKind, connID string) error {
	usage, err := s.states.Acquire(userID, true)
	if err != nil {
		return fmt.Errorf("failed to track connection: %w", err)
	}
	defer usage.Release()

	state := usage.Value()
	if state == nil {
		usage.SetValue(&ConnectionState{
			TokenID:     tokenID,
			Connections: map[HubKind]string{kind: connID},
		})
		return nil
	}

	if state.TokenID == tokenID {
		// Same client instance reconnecting or opening another hub.
		state.Connections[kind] = connID
		return nil
	}

	// A new client instance supersedes the old one.
	log.Printf("user %d superseded by new client instance, disconnecting %d stale connections", userID, len(state.Connections))
	for _, staleConnID := range state.Connections {
		s.broadcaster.RequestDisconnect(staleConnID)
	}

	usage.SetValue(&ConnectionState{
		TokenID:     tokenID,
		Connections: map[HubKind]string{kind: connID},
	})
	return nil
}

// Verify checks an invocation's (token, connection, hub) tuple against
// the stored state, rejecting calls from superseded client instances.
func (s *ConnectionService) Verify(userID int64, tokenID string, kind HubKind, connID string) error {
	usage, err := s.states.Acquire(userID, false)
	if err != nil {
		return ErrStaleConnection
	}
	defer usage.Release()

	state := usage.Value()
	if state == nil || state.TokenID != tokenID {
		return ErrStaleConnection
	}
	if cur, ok := state.Connections[kind]; !ok || cur != connID {
		return ErrStaleConnection
	}
	return nil
}

// Disconnected handles a clean hub disconnect. The state is destroyed
// only when the disconnecting instance is still the active one; a
// superseded instance going away leaves the new state untouched.
// Returns whether the state was destroyed.
func (s *ConnectionService) Disconnected(userID int64, tokenID string) (bool, error) {
	usage, err := s.states.Acquire(userID, false)
	if err != nil {
		if err == entity.ErrNotTracked {
			return false, nil
		}
		return false, err
	}

	state := usage.Value()
	if state == nil || state.TokenID != tokenID {
		usage.Release()
		return false, nil
	}

	usage.Destroy()
	return true, nil
}
