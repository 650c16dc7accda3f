package service

import (
	"fmt"

	"rhythmhub/internal/model"
)

// Broadcaster delivers server-to-client events and manages broadcast
// group membership (implemented by the ws hub; avoids import cycle).
type Broadcaster interface {
	BroadcastToGroup(group string, event model.EventType, payload any)
	BroadcastToUser(userID int64, event model.EventType, payload any)
	BroadcastToConnection(connID string, event model.EventType, payload any)
	AddUserToGroup(userID int64, group string)
	RemoveUserFromGroup(userID int64, group string)
	RequestDisconnect(connID string)
}

// RoomGroup is the control broadcast group carrying all room events.
func RoomGroup(roomID int64) string {
	return fmt.Sprintf("room:%d", roomID)
}

// GameplayGroup is the broadcast subset receiving load/abort/finish
// messages. Users enter it on Ready or Spectating and leave it on Idle
// or FinishedPlay.
func GameplayGroup(roomID int64) string {
	return fmt.Sprintf("room:%d:true", roomID)
}
