package service

import (
	"rhythmhub/internal/model"
)

// ServerRoom is the live in-memory room aggregate. Every field is
// guarded by the room's entity lock; live references never leave it.
// Snapshots returned across the hub boundary are deep copies.
type ServerRoom struct {
	ID       int64
	Settings model.RoomSettings
	State    model.RoomStatus
	Users    []*model.RoomUser
	Host     *model.RoomUser
	Queue    *PlaylistQueue

	countdown *activeCountdown
	match     matchTypeHandler
}

// FindUser returns the participant with the given id, or nil.
func (r *ServerRoom) FindUser(userID int64) *model.RoomUser {
	for _, u := range r.Users {
		if u.UserID == userID {
			return u
		}
	}
	return nil
}

// removeUser deletes the participant from the list, preserving join
// order. Returns whether the user was present.
func (r *ServerRoom) removeUser(userID int64) bool {
	for i, u := range r.Users {
		if u.UserID == userID {
			r.Users = append(r.Users[:i], r.Users[i+1:]...)
			return true
		}
	}
	return false
}

// usersInState returns every participant currently in the given state.
func (r *ServerRoom) usersInState(state model.UserState) []*model.RoomUser {
	var out []*model.RoomUser
	for _, u := range r.Users {
		if u.State == state {
			out = append(out, u)
		}
	}
	return out
}

// anyUserInState reports whether some participant is in the given state.
func (r *ServerRoom) anyUserInState(state model.UserState) bool {
	for _, u := range r.Users {
		if u.State == state {
			return true
		}
	}
	return false
}

// Snapshot deep-copies the room into its serializable form.
func (r *ServerRoom) Snapshot() *model.Room {
	users := make([]*model.RoomUser, 0, len(r.Users))
	for _, u := range r.Users {
		users = append(users, u.Clone())
	}

	var hostID int64
	if r.Host != nil {
		hostID = r.Host.UserID
	}

	var countdown *model.Countdown
	if r.countdown != nil {
		c := r.countdown.info
		countdown = &c
	}

	return &model.Room{
		ID:        r.ID,
		Settings:  r.Settings,
		State:     r.State,
		Users:     users,
		HostID:    hostID,
		Playlist:  r.Queue.SnapshotItems(),
		Countdown: countdown,
	}
}
