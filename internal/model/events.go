package model

// EventType names a server-to-client hub message.
type EventType string

const (
	EventUserJoined           EventType = "user_joined"
	EventUserLeft             EventType = "user_left"
	EventUserKicked           EventType = "user_kicked"
	EventHostChanged          EventType = "host_changed"
	EventSettingsChanged      EventType = "settings_changed"
	EventUserStateChanged     EventType = "user_state_changed"
	EventRoomStateChanged     EventType = "room_state_changed"
	EventUserBeatmapChanged   EventType = "user_beatmap_availability_changed"
	EventUserModsChanged      EventType = "user_mods_changed"
	EventMatchStarted         EventType = "match_started"
	EventResultsReady         EventType = "results_ready"
	EventLoadRequested        EventType = "load_requested"
	EventMatchEvent           EventType = "match_event"
	EventMatchRoomState       EventType = "match_room_state_changed"
	EventMatchUserState       EventType = "match_user_state_changed"
	EventCountdownChanged     EventType = "countdown_changed"
	EventPlaylistItemAdded    EventType = "playlist_item_added"
	EventPlaylistItemChanged  EventType = "playlist_item_changed"
	EventPlaylistItemRemoved  EventType = "playlist_item_removed"
	EventInvited              EventType = "invited"
	EventDisconnectRequested  EventType = "disconnect_requested"
)

// UserStatePayload accompanies EventUserStateChanged.
type UserStatePayload struct {
	UserID int64     `json:"userId"`
	State  UserState `json:"state"`
}

// HostChangedPayload accompanies EventHostChanged.
type HostChangedPayload struct {
	UserID int64 `json:"userId"`
}

// CountdownChangedPayload accompanies EventCountdownChanged. Countdown is
// nil when a countdown was stopped.
type CountdownChangedPayload struct {
	Countdown *Countdown `json:"countdown"`
}

// UserLeftPayload accompanies EventUserLeft and EventUserKicked.
type UserLeftPayload struct {
	UserID int64 `json:"userId"`
}

// MatchUserStatePayload accompanies EventMatchUserState.
type MatchUserStatePayload struct {
	UserID int64 `json:"userId"`
	TeamID int   `json:"teamId"`
}

// UserModsPayload accompanies EventUserModsChanged.
type UserModsPayload struct {
	UserID int64 `json:"userId"`
	Mods   []Mod `json:"mods"`
}

// BeatmapAvailabilityPayload accompanies EventUserBeatmapChanged.
type BeatmapAvailabilityPayload struct {
	UserID       int64               `json:"userId"`
	Availability BeatmapAvailability `json:"beatmapAvailability"`
}

// RoomStatePayload accompanies EventRoomStateChanged.
type RoomStatePayload struct {
	State RoomStatus `json:"state"`
}

// InvitedPayload accompanies EventInvited.
type InvitedPayload struct {
	InvitedBy int64  `json:"invitedBy"`
	RoomID    int64  `json:"roomId"`
	Password  string `json:"password"`
}
