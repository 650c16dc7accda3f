package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"rhythmhub/internal/entity"
	"rhythmhub/internal/model"
	"rhythmhub/internal/repository"
)

// ClientState is a user's server-side multiplayer presence: the room the
// user is currently joined to. Keyed by user id; acquired before the
// room lock whenever both are needed.
type ClientState struct {
	RoomID int64
}

// MultiplayerService is the room coordinator. It validates user-driven
// state transitions, enforces host privileges, drives room-level
// transitions and operates the countdown scheduler. Every mutation of a
// room happens while holding that room's entity lock.
type MultiplayerService struct {
	rooms        *entity.Store[ServerRoom]
	clients      *entity.Store[ClientState]
	repo         repository.MultiplayerRepo
	relations    repository.RelationRepo
	beatmaps     *BeatmapLookup
	restrictions *RestrictionLookup
	rules        RulesLegality
	broadcaster  Broadcaster
}

// NewMultiplayerService creates a new multiplayer service
func NewMultiplayerService(
	rooms *entity.Store[ServerRoom],
	clients *entity.Store[ClientState],
	repo repository.MultiplayerRepo,
	relations repository.RelationRepo,
	beatmaps *BeatmapLookup,
	restrictions *RestrictionLookup,
	rules RulesLegality,
) *MultiplayerService {
	return &MultiplayerService{
		rooms:        rooms,
		clients:      clients,
		repo:         repo,
		relations:    relations,
		beatmaps:     beatmaps,
		restrictions: restrictions,
		rules:        rules,
	}
}

// SetBroadcaster sets the broadcaster used to fan events to clients.
func (s *MultiplayerService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// JoinRoom adds the caller to a room, creating the live room aggregate
// on first join. The first joiner must be the room's owner-of-record.
// Returns a deep snapshot of the room.
func (s *MultiplayerService) JoinRoom(ctx context.Context, userID, roomID int64, password string) (*model.Room, error) {
	restricted, err := s.restrictions.IsRestricted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check restriction: %w", err)
	}
	if restricted {
		return nil, ErrInvalidState
	}

	clientUsage, err := s.clients.Acquire(userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire user state: %w", err)
	}
	defer clientUsage.Release()

	if clientUsage.Value() != nil {
		// Already in a room.
		return nil, ErrInvalidState
	}

	roomUsage, err := s.rooms.Acquire(roomID, true)
	if err != nil {
		clientUsage.Destroy()
		return nil, fmt.Errorf("failed to acquire room: %w", err)
	}
	defer roomUsage.Release()

	room := roomUsage.Value()
	if room == nil {
		room, err = s.createRoom(ctx, roomID, userID, password)
		if err != nil {
			roomUsage.Destroy()
			clientUsage.Destroy()
			return nil, err
		}
		roomUsage.SetValue(room)
	} else {
		if room.FindUser(userID) != nil {
			clientUsage.Destroy()
			return nil, ErrInvalidState
		}
		if room.Settings.Password != "" && room.Settings.Password != password {
			clientUsage.Destroy()
			return nil, ErrInvalidPassword
		}
	}

	user := &model.RoomUser{
		UserID:       userID,
		State:        model.UserIdle,
		Availability: model.BeatmapAvailability{State: model.BeatmapUnknown},
	}

	s.broadcaster.BroadcastToGroup(RoomGroup(roomID), model.EventUserJoined, user.Clone())
	room.Users = append(room.Users, user)
	if room.Host == nil {
		// First joiner is the owner-of-record.
		room.Host = user
	}
	room.match.OnJoin(room, user)

	if err := s.repo.AddParticipant(ctx, roomID, userID); err != nil {
		s.leaveRoomLocked(ctx, clientUsage, roomUsage, room, user, false)
		return nil, fmt.Errorf("failed to persist participant: %w", err)
	}

	s.broadcaster.AddUserToGroup(userID, RoomGroup(roomID))
	clientUsage.SetValue(&ClientState{RoomID: roomID})

	return room.Snapshot(), nil
}

// createRoom brings a persisted room live for its first joiner.
func (s *MultiplayerService) createRoom(ctx context.Context, roomID, userID int64, password string) (*ServerRoom, error) {
	record, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	if record == nil || record.Ended() {
		return nil, ErrInvalidState
	}
	if record.HostUserID != userID {
		// The owner-of-record must be the first to join.
		return nil, ErrInvalidState
	}
	if record.Password != "" && record.Password != password {
		return nil, ErrInvalidPassword
	}

	settings := model.RoomSettings{
		Name:              record.Name,
		Password:          record.Password,
		MatchType:         record.MatchType,
		QueueMode:         record.QueueMode,
		AutoStartDuration: record.AutoStartDuration,
	}

	room := &ServerRoom{
		ID:       roomID,
		Settings: settings,
		State:    model.RoomOpen,
		Queue:    NewPlaylistQueue(roomID, settings.QueueMode, s.repo, s.beatmaps, s.rules),
		match:    newMatchTypeHandler(settings.MatchType, s.broadcaster),
	}

	if err := room.Queue.Initialize(ctx); err != nil {
		s.endMatch(ctx, roomID)
		return nil, err
	}
	if current := room.Queue.CurrentItem(); current != nil {
		room.Settings.PlaylistItemID = current.ID
	}

	if err := s.repo.MarkRoomActive(ctx, roomID); err != nil {
		s.endMatch(ctx, roomID)
		return nil, fmt.Errorf("failed to mark room active: %w", err)
	}

	return room, nil
}

// LeaveRoom removes the caller from their current room.
func (s *MultiplayerService) LeaveRoom(ctx context.Context, userID int64) error {
	clientUsage, err := s.clients.Acquire(userID, false)
	if err != nil {
		if errors.Is(err, entity.ErrNotTracked) {
			return ErrNotJoinedRoom
		}
		return fmt.Errorf("failed to acquire user state: %w", err)
	}
	defer clientUsage.Release()

	state := clientUsage.Value()
	if state == nil {
		clientUsage.Destroy()
		return ErrNotJoinedRoom
	}

	roomUsage, err := s.rooms.Acquire(state.RoomID, false)
	if err != nil {
		if errors.Is(err, entity.ErrNotTracked) {
			clientUsage.Destroy()
			return nil
		}
		return fmt.Errorf("failed to acquire room: %w", err)
	}
	defer roomUsage.Release()

	room := roomUsage.Value()
	user := room.FindUser(userID)
	if user == nil {
		clientUsage.Destroy()
		return ErrNotJoinedRoom
	}

	return s.leaveRoomLocked(ctx, clientUsage, roomUsage, room, user, false)
}

// HandleDisconnect runs the leave procedure for a user whose client
// instance went away. Not being in a room is fine.
func (s *MultiplayerService) HandleDisconnect(ctx context.Context, userID int64) error {
	err := s.LeaveRoom(ctx, userID)
	if errors.Is(err, ErrNotJoinedRoom) {
		return nil
	}
	return err
}

// KickUser removes another participant from the caller's room. Host
// only; the target is told directly before removal.
func (s *MultiplayerService) KickUser(ctx context.Context, userID, targetID int64) error {
	if userID == targetID {
		return ErrInvalidState
	}

	clientUsage, err := s.clients.Acquire(userID, false)
	if err != nil {
		if errors.Is(err, entity.ErrNotTracked) {
			return ErrNotJoinedRoom
		}
		return fmt.Errorf("failed to acquire user state: %w", err)
	}
	defer clientUsage.Release()

	state := clientUsage.Value()
	if state == nil {
		return ErrNotJoinedRoom
	}

	// Caller's state, then target's, then the room.
	targetUsage, err := s.clients.Acquire(targetID, false)
	if err != nil {
		if errors.Is(err, entity.ErrNotTracked) {
			return ErrInvalidState
		}
		return fmt.Errorf("failed to acquire user state: %w", err)
	}
	defer targetUsage.Release()

	roomUsage, err := s.rooms.Acquire(state.RoomID, false)
	if err != nil {
		return fmt.Errorf("failed to acquire room: %w", err)
	}
	defer roomUsage.Release()

	room := roomUsage.Value()
	if room.Host == nil || room.Host.UserID != userID {
		return ErrNotHost
	}

	target := room.FindUser(targetID)
	targetState := targetUsage.Value()
	if target == nil || targetState == nil || targetState.RoomID != room.ID {
		return ErrInvalidState
	}

	s.broadcaster.BroadcastToUser(targetID, model.EventUserKicked, &model.UserLeftPayload{UserID: targetID})
	return s.leaveRoomLocked(ctx, targetUsage, roomUsage, room, target, true)
}

// leaveRoomLocked removes a user from the room and tears down the room
// when it empties. Both the user's client-state usage and the room
// usage must be held; the client state is always destroyed.
func (s *MultiplayerService) leaveRoomLocked(ctx context.Context, clientUsage *entity.Usage[ClientState], roomUsage *entity.Usage[ServerRoom], room *ServerRoom, user *model.RoomUser, kicked bool) error {
	s.broadcaster.RemoveUserFromGroup(user.UserID, RoomGroup(room.ID))
	s.broadcaster.RemoveUserFromGroup(user.UserID, GameplayGroup(room.ID))

	room.removeUser(user.UserID)
	room.match.OnLeave(room, user)
	if err := s.repo.RemoveParticipant(ctx, room.ID, user.UserID); err != nil {
		log.Printf("failed to remove participant %d from room %d: %v", user.UserID, room.ID, err)
	}

	if len(room.Users) == 0 {
		if room.countdown != nil {
			room.countdown.signalStop()
			room.countdown = nil
		}
		s.endMatch(ctx, room.ID)
		roomUsage.Destroy()
	} else {
		if room.Host != nil && room.Host.UserID == user.UserID {
			s.setHost(ctx, room, room.Users[0])
		}
		s.updateRoomStateIfRequired(ctx, room)

		event := model.EventUserLeft
		if kicked {
			event = model.EventUserKicked
		}
		s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), event, &model.UserLeftPayload{UserID: user.UserID})
	}

	clientUsage.Destroy()
	return nil
}

func (s *MultiplayerService) endMatch(ctx context.Context, roomID int64) {
	if err := s.repo.EndMatch(ctx, roomID); err != nil {
		log.Printf("failed to end match for room %d: %v", roomID, err)
	}
}

// ChangeState applies a client-requested user state transition.
func (s *MultiplayerService) ChangeState(ctx context.Context, userID int64, newState model.UserState) error {
	return s.withRoomUser(userID, func(room *ServerRoom, user *model.RoomUser) error {
		apply, err := validateClientStateChange(user.State, newState)
		if err != nil {
			return err
		}
		if !apply {
			return nil
		}
		if newState == model.UserReady && room.Queue.CurrentItem() == nil {
			return ErrInvalidState
		}

		s.setUserState(room, user, newState)

		if newState == model.UserSpectating && room.State != model.RoomOpen {
			// Late spectator of a match already underway.
			s.broadcaster.BroadcastToUser(userID, model.EventLoadRequested, nil)
		}

		s.updateRoomStateIfRequired(ctx, room)
		return nil
	})
}

// StartMatch begins gameplay for every Ready user. Host only.
func (s *MultiplayerService) StartMatch(ctx context.Context, userID int64) error {
	return s.withRoomUser(userID, func(room *ServerRoom, user *model.RoomUser) error {
		if room.Host == nil || room.Host.UserID != userID {
			return ErrNotHost
		}
		if room.State != model.RoomOpen {
			return ErrInvalidState
		}
		if user.State != model.UserReady && user.State != model.UserSpectating {
			return ErrInvalidState
		}
		if !room.anyUserInState(model.UserReady) {
			return ErrInvalidState
		}

		if room.countdown != nil {
			// An armed countdown owns the start; fire it now. Completion
			// runs once the room lock is released.
			s.skipToEnd(room)
			return nil
		}
		s.internalStartMatch(ctx, room)
		return nil
	})
}

// internalStartMatch moves the room into the load phase. Called with
// the room lock held, from StartMatch or a countdown completion.
func (s *MultiplayerService) internalStartMatch(ctx context.Context, room *ServerRoom) {
	for _, u := range room.Users {
		if u.State == model.UserReady {
			s.setUserState(room, u, model.UserWaitingForLoad)
		}
	}
	s.setRoomState(room, model.RoomWaitingForLoad)
	s.broadcaster.BroadcastToGroup(GameplayGroup(room.ID), model.EventLoadRequested, nil)
}

// countdownStart is the completion callback of match-start countdowns.
// The room may have changed while the countdown ran; only start when
// the preconditions still hold.
func (s *MultiplayerService) countdownStart(ctx context.Context, room *ServerRoom) {
	if room.State != model.RoomOpen {
		return
	}
	if !room.anyUserInState(model.UserReady) || room.Queue.CurrentItem() == nil {
		return
	}
	s.internalStartMatch(ctx, room)
}

// AbortGameplay bails the caller out of an in-progress load or play.
func (s *MultiplayerService) AbortGameplay(ctx context.Context, userID int64) error {
	return s.withRoomUser(userID, func(room *ServerRoom, user *model.RoomUser) error {
		if !user.State.IsGameplay() {
			return ErrInvalidState
		}
		s.setUserState(room, user, model.UserIdle)
		s.updateRoomStateIfRequired(ctx, room)
		return nil
	})
}

// TransferHost hands host privileges to another participant. Host only.
func (s *MultiplayerService) TransferHost(ctx context.Context, userID, targetID int64) error {
	return s.withRoomUser(userID, func(room *ServerRoom, user *model.RoomUser) error {
		if room.Host == nil || room.Host.UserID != userID {
			return ErrNotHost
		}
		target := room.FindUser(targetID)
		if target == nil {
			return ErrInvalidState
		}
		s.setHost(ctx, room, target)
		return nil
	})
}

func (s *MultiplayerService) setHost(ctx context.Context, room *ServerRoom, user *model.RoomUser) {
	room.Host = user
	s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventHostChanged, &model.HostChangedPayload{UserID: user.UserID})
	if err := s.repo.UpdateRoomHost(ctx, room.ID, user.UserID); err != nil {
		log.Printf("failed to persist host of room %d: %v", room.ID, err)
	}
}

// ChangeSettings applies new host-editable settings. Host only, and
// only while the room is open. A persistence failure rolls the
// in-memory change back.
func (s *MultiplayerService) ChangeSettings(ctx context.Context, userID int64, settings model.RoomSettings) error {
	return s.withRoomUser(userID, func(room *ServerRoom, user *model.RoomUser) error {
		if room.Host == nil || room.Host.UserID != userID {
			return ErrNotHost
		}
		if room.State != model.RoomOpen {
			return ErrInvalidState
		}
		if settings.MatchType == model.MatchPlaylists {
			return ErrInvalidState
		}

		// The current playlist item is server-authoritative.
		settings.PlaylistItemID = room.Settings.PlaylistItemID
		if settings.Equal(room.Settings) {
			return nil
		}

		old := room.Settings
		room.Settings = settings

		record := &model.RoomRecord{
			ID:                room.ID,
			Name:              settings.Name,
			Password:          settings.Password,
			HostUserID:        room.Host.UserID,
			MatchType:         settings.MatchType,
			QueueMode:         settings.QueueMode,
			AutoStartDuration: settings.AutoStartDuration,
		}
		if err := s.repo.UpdateRoomSettings(ctx, record); err != nil {
			room.Settings = old
			return fmt.Errorf("failed to persist settings: %w", err)
		}

		if old.MatchType != settings.MatchType {
			room.match = newMatchTypeHandler(settings.MatchType, s.broadcaster)
			for _, u := range room.Users {
				room.match.OnJoin(room, u)
			}
		}

		if old.QueueMode != settings.QueueMode {
			changed, err := room.Queue.ChangeMode(ctx, settings.QueueMode)
			if err != nil {
				log.Printf("failed to reorder playlist of room %d: %v", room.ID, err)
			}
			for _, item := range changed {
				s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventPlaylistItemChanged, item.Clone())
			}
		}

		s.revalidateUserMods(room)
		for _, u := range room.Users {
			if u.State == model.UserReady {
				s.setUserState(room, u, model.UserIdle)
			}
		}

		s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventSettingsChanged, room.Settings)
		s.updateRoomStateIfRequired(ctx, room)
		return nil
	})
}

// ChangeUserMods replaces the caller's mod selection after validating
// it against the current playlist item.
func (s *MultiplayerService) ChangeUserMods(ctx context.Context, userID int64, mods []model.Mod) error {
	return s.withRoomUser(userID, func(room *ServerRoom, user *model.RoomUser) error {
		if !modsAllowedForItem(mods, room.Queue.CurrentItem()) {
			return ErrInvalidState
		}
		user.Mods = append([]model.Mod(nil), mods...)
		s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventUserModsChanged, &model.UserModsPayload{UserID: userID, Mods: user.Mods})
		return nil
	})
}

// ChangeBeatmapAvailability updates the caller's local availability of
// the current beatmap. A repeat of the current value is a no-op.
func (s *MultiplayerService) ChangeBeatmapAvailability(ctx context.Context, userID int64, availability model.BeatmapAvailability) error {
	return s.withRoomUser(userID, func(room *ServerRoom, user *model.RoomUser) error {
		if user.Availability == availability {
			return nil
		}
		user.Availability = availability
		s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventUserBeatmapChanged, &model.BeatmapAvailabilityPayload{
			UserID:       userID,
			Availability: availability,
		})
		return nil
	})
}

// SendMatchRequest dispatches a tagged match request: countdown control
// handled here, everything else delegated to the match-type strategy.
func (s *MultiplayerService) SendMatchRequest(ctx context.Context, userID int64, req *model.MatchRequest) error {
	return s.withRoomUser(userID, func(room *ServerRoom, user *model.RoomUser) error {
		switch req.Type {
		case model.RequestStartCountdown:
			if room.Host == nil || room.Host.UserID != userID {
				return ErrNotHost
			}
			if room.State != model.RoomOpen {
				return ErrInvalidState
			}
			if room.Settings.AutoStartDuration > 0 {
				// Auto-start owns the countdown.
				return ErrInvalidState
			}

			var start model.StartCountdownRequest
			if err := req.DecodePayload(&start); err != nil {
				return ErrInvalidState
			}
			if start.Duration <= 0 {
				return ErrInvalidState
			}

			s.startCountdown(room, model.Countdown{
				Kind:      model.CountdownMatchStart,
				Duration:  start.Duration,
				StartedAt: time.Now(),
			}, s.countdownStart)
			return nil

		case model.RequestStopCountdown:
			if room.Host == nil || room.Host.UserID != userID {
				return ErrNotHost
			}
			if room.countdown != nil && room.countdown.info.Kind == model.CountdownForceStart {
				return ErrInvalidState
			}
			s.stopCountdown(room)
			return nil

		default:
			return room.match.HandleRequest(room, user, req)
		}
	})
}

// AddPlaylistItem appends (or, in host-only mode, re-edits) a playlist
// item under the active queue mode.
func (s *MultiplayerService) AddPlaylistItem(ctx context.Context, userID int64, item *model.PlaylistItem) error {
	return s.withRoomUser(userID, func(room *ServerRoom, user *model.RoomUser) error {
		isHost := room.Host != nil && room.Host.UserID == userID
		before := currentItemID(room)

		change, err := room.Queue.AddItem(ctx, item, userID, isHost)
		if err != nil {
			return err
		}
		s.broadcastQueueChange(room, change)
		s.afterQueueChange(ctx, room, before)
		return nil
	})
}

// EditPlaylistItem replaces a pending item's content.
func (s *MultiplayerService) EditPlaylistItem(ctx context.Context, userID int64, item *model.PlaylistItem) error {
	return s.withRoomUser(userID, func(room *ServerRoom, user *model.RoomUser) error {
		isHost := room.Host != nil && room.Host.UserID == userID
		before := currentItemID(room)

		change, err := room.Queue.EditItem(ctx, item, userID, isHost)
		if err != nil {
			return err
		}
		s.broadcastQueueChange(room, change)
		s.afterQueueChange(ctx, room, before)
		return nil
	})
}

// RemovePlaylistItem deletes a pending item.
func (s *MultiplayerService) RemovePlaylistItem(ctx context.Context, userID, itemID int64) error {
	return s.withRoomUser(userID, func(room *ServerRoom, user *model.RoomUser) error {
		isHost := room.Host != nil && room.Host.UserID == userID
		before := currentItemID(room)

		change, err := room.Queue.RemoveItem(ctx, itemID, userID, isHost)
		if err != nil {
			return err
		}
		s.broadcastQueueChange(room, change)
		s.afterQueueChange(ctx, room, before)
		return nil
	})
}

// InvitePlayer sends a room invite, honouring block relations and the
// target's message privacy.
func (s *MultiplayerService) InvitePlayer(ctx context.Context, userID, targetID int64) error {
	return s.withRoomUser(userID, func(room *ServerRoom, user *model.RoomUser) error {
		theirs, err := s.relations.GetRelation(ctx, targetID, userID)
		if err != nil {
			return fmt.Errorf("failed to check relation: %w", err)
		}
		if theirs == repository.RelationBlock {
			return ErrUserBlocked
		}

		ours, err := s.relations.GetRelation(ctx, userID, targetID)
		if err != nil {
			return fmt.Errorf("failed to check relation: %w", err)
		}
		if ours == repository.RelationBlock {
			return ErrUserBlocked
		}

		if theirs != repository.RelationFriend {
			blocks, err := s.relations.BlocksPMs(ctx, targetID)
			if err != nil {
				return fmt.Errorf("failed to check message privacy: %w", err)
			}
			if blocks {
				return ErrUserBlocksPMs
			}
		}

		s.broadcaster.BroadcastToUser(targetID, model.EventInvited, &model.InvitedPayload{
			InvitedBy: userID,
			RoomID:    room.ID,
			Password:  room.Settings.Password,
		})
		return nil
	})
}

// GetRoom returns a deep snapshot of a live room, or nil when the room
// is not tracked.
func (s *MultiplayerService) GetRoom(roomID int64) (*model.Room, error) {
	usage, err := s.rooms.Acquire(roomID, false)
	if err != nil {
		if errors.Is(err, entity.ErrNotTracked) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire room: %w", err)
	}
	defer usage.Release()
	return usage.Value().Snapshot(), nil
}

// ListRooms snapshots every live room.
func (s *MultiplayerService) ListRooms() []*model.Room {
	var out []*model.Room
	for id := range s.rooms.Snapshot() {
		room, err := s.GetRoom(id)
		if err != nil || room == nil {
			continue
		}
		out = append(out, room)
	}
	return out
}

// withRoomUser acquires the caller's client state and then their room,
// in the canonical order, and runs fn with the room lock held.
func (s *MultiplayerService) withRoomUser(userID int64, fn func(room *ServerRoom, user *model.RoomUser) error) error {
	clientUsage, err := s.clients.Acquire(userID, false)
	if err != nil {
		if errors.Is(err, entity.ErrNotTracked) {
			return ErrNotJoinedRoom
		}
		return fmt.Errorf("failed to acquire user state: %w", err)
	}
	defer clientUsage.Release()

	state := clientUsage.Value()
	if state == nil {
		return ErrNotJoinedRoom
	}

	roomUsage, err := s.rooms.Acquire(state.RoomID, false)
	if err != nil {
		if errors.Is(err, entity.ErrNotTracked) {
			return ErrNotJoinedRoom
		}
		return fmt.Errorf("failed to acquire room: %w", err)
	}
	defer roomUsage.Release()

	room := roomUsage.Value()
	user := room.FindUser(userID)
	if user == nil {
		return ErrNotJoinedRoom
	}
	return fn(room, user)
}

// setUserState applies a user state, keeps gameplay-group membership in
// step and notifies the room.
func (s *MultiplayerService) setUserState(room *ServerRoom, user *model.RoomUser, state model.UserState) {
	user.State = state

	switch state {
	case model.UserReady, model.UserSpectating:
		s.broadcaster.AddUserToGroup(user.UserID, GameplayGroup(room.ID))
	case model.UserIdle, model.UserFinishedPlay:
		s.broadcaster.RemoveUserFromGroup(user.UserID, GameplayGroup(room.ID))
	}

	s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventUserStateChanged, &model.UserStatePayload{
		UserID: user.UserID,
		State:  state,
	})
}

func (s *MultiplayerService) setRoomState(room *ServerRoom, state model.RoomStatus) {
	room.State = state
	s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventRoomStateChanged, &model.RoomStatePayload{State: state})
}

// updateRoomStateIfRequired drives room-level transitions after any
// user-state or user-set change. Single pass over the room.
func (s *MultiplayerService) updateRoomStateIfRequired(ctx context.Context, room *ServerRoom) {
	switch room.State {
	case model.RoomOpen:
		if room.Settings.AutoStartDuration <= 0 {
			return
		}
		if room.anyUserInState(model.UserReady) && room.Queue.CurrentItem() != nil {
			if room.countdown == nil {
				s.startCountdown(room, model.Countdown{
					Kind:      model.CountdownForceStart,
					Duration:  room.Settings.AutoStartDuration,
					StartedAt: time.Now(),
				}, s.countdownStart)
			}
		} else {
			s.stopCountdownIfKind(room, model.CountdownForceStart)
		}

	case model.RoomWaitingForLoad:
		if room.anyUserInState(model.UserWaitingForLoad) {
			return
		}
		if room.anyUserInState(model.UserLoaded) {
			for _, u := range room.usersInState(model.UserLoaded) {
				s.setUserState(room, u, model.UserPlaying)
			}
			s.setRoomState(room, model.RoomPlaying)
			s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventMatchStarted, nil)
		} else {
			// Everybody abandoned the load.
			s.setRoomState(room, model.RoomOpen)
		}

	case model.RoomPlaying:
		if room.anyUserInState(model.UserPlaying) {
			return
		}
		for _, u := range room.usersInState(model.UserFinishedPlay) {
			s.setUserState(room, u, model.UserResults)
		}
		s.setRoomState(room, model.RoomOpen)
		s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventResultsReady, nil)

		before := currentItemID(room)
		change, err := room.Queue.FinishCurrentItem(ctx)
		if err != nil {
			log.Printf("failed to rotate playlist of room %d: %v", room.ID, err)
			return
		}
		s.broadcastQueueChange(room, change)
		s.handleCurrentItemChange(room, before)
	}
}

// afterQueueChange reacts to a playlist mutation: current-item change
// side effects first, then the room-state pass.
func (s *MultiplayerService) afterQueueChange(ctx context.Context, room *ServerRoom, beforeItemID int64) {
	s.handleCurrentItemChange(room, beforeItemID)
	s.updateRoomStateIfRequired(ctx, room)
}

// handleCurrentItemChange un-readies everyone and re-validates mod
// selections when the current playlist item moved.
func (s *MultiplayerService) handleCurrentItemChange(room *ServerRoom, beforeItemID int64) {
	after := currentItemID(room)
	if after == beforeItemID {
		return
	}
	room.Settings.PlaylistItemID = after

	for _, u := range room.Users {
		if u.State == model.UserReady {
			s.setUserState(room, u, model.UserIdle)
		}
	}
	s.revalidateUserMods(room)
}

// revalidateUserMods strips mod selections no longer allowed by the
// current playlist item.
func (s *MultiplayerService) revalidateUserMods(room *ServerRoom) {
	current := room.Queue.CurrentItem()
	for _, u := range room.Users {
		valid := filterValidMods(u.Mods, current)
		if model.ModsEqual(valid, u.Mods) {
			continue
		}
		u.Mods = valid
		s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventUserModsChanged, &model.UserModsPayload{UserID: u.UserID, Mods: valid})
	}
}

func (s *MultiplayerService) broadcastQueueChange(room *ServerRoom, change *QueueChange) {
	for _, item := range change.Added {
		s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventPlaylistItemAdded, item.Clone())
	}
	for _, item := range change.Changed {
		s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventPlaylistItemChanged, item.Clone())
	}
	for _, item := range change.Removed {
		s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventPlaylistItemRemoved, item.Clone())
	}
}

func currentItemID(room *ServerRoom) int64 {
	if current := room.Queue.CurrentItem(); current != nil {
		return current.ID
	}
	return 0
}

func modsAllowedForItem(mods []model.Mod, item *model.PlaylistItem) bool {
	if len(mods) == 0 {
		return true
	}
	if item == nil {
		return false
	}
	for _, m := range mods {
		if !model.ModsContain(item.AllowedMods, m.Acronym) {
			return false
		}
	}
	return true
}

func filterValidMods(mods []model.Mod, item *model.PlaylistItem) []model.Mod {
	if item == nil {
		return nil
	}
	var out []model.Mod
	for _, m := range mods {
		if model.ModsContain(item.AllowedMods, m.Acronym) {
			out = append(out, m)
		}
	}
	return out
}
