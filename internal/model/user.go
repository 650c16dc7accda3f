package model

// UserState is the per-user position in the gameplay lifecycle.
type UserState string

const (
	UserIdle           UserState = "idle"
	UserReady          UserState = "ready"
	UserWaitingForLoad UserState = "waiting_for_load"
	UserLoaded         UserState = "loaded"
	UserPlaying        UserState = "playing"
	UserFinishedPlay   UserState = "finished_play"
	UserResults        UserState = "results"
	UserSpectating     UserState = "spectating"
)

// IsGameplay reports whether the state belongs to an in-progress match.
func (s UserState) IsGameplay() bool {
	return s == UserWaitingForLoad || s == UserLoaded || s == UserPlaying
}

// AvailabilityState describes whether a user has the current beatmap.
type AvailabilityState string

const (
	BeatmapUnknown          AvailabilityState = "unknown"
	BeatmapNotDownloaded    AvailabilityState = "not_downloaded"
	BeatmapDownloading      AvailabilityState = "downloading"
	BeatmapImporting        AvailabilityState = "importing"
	BeatmapLocallyAvailable AvailabilityState = "locally_available"
)

// BeatmapAvailability is a user's local availability of the current item's beatmap.
type BeatmapAvailability struct {
	State            AvailabilityState `json:"state"`
	DownloadProgress float64           `json:"downloadProgress,omitempty"`
}

// TeamState is the team-versus per-user match state.
type TeamState struct {
	TeamID int `json:"teamId"`
}

// RoomUser is a participant of a live room.
type RoomUser struct {
	UserID       int64               `json:"userId"`
	State        UserState           `json:"state"`
	Mods         []Mod               `json:"mods"`
	Availability BeatmapAvailability `json:"beatmapAvailability"`
	TeamState    *TeamState          `json:"teamState,omitempty"`
}

// Clone returns a deep copy safe to hand across the room lock.
func (u *RoomUser) Clone() *RoomUser {
	c := *u
	c.Mods = append([]Mod(nil), u.Mods...)
	if u.TeamState != nil {
		ts := *u.TeamState
		c.TeamState = &ts
	}
	return &c
}
