package service

import (
	"context"
	"sync"
	"time"

	"rhythmhub/internal/model"
)

// activeCountdown is a running countdown attached to a room. The timer
// runs in a background goroutine; stop suppresses the completion
// callback, skip fires it early. Either signal aborts the sleep.
type activeCountdown struct {
	info model.Countdown

	stop chan struct{}
	skip chan struct{}
	done chan struct{}

	stopOnce sync.Once
	skipOnce sync.Once
}

func newActiveCountdown(info model.Countdown) *activeCountdown {
	return &activeCountdown{
		info: info,
		stop: make(chan struct{}),
		skip: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (c *activeCountdown) signalStop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *activeCountdown) signalSkip() {
	c.skipOnce.Do(func() { close(c.skip) })
}

// startCountdown installs a new countdown on the room and launches its
// timer. Any previous countdown is stopped first so the new one is the
// only one visible to subsequent readers. Caller holds the room lock.
func (s *MultiplayerService) startCountdown(room *ServerRoom, info model.Countdown, onComplete func(ctx context.Context, room *ServerRoom)) {
	if room.countdown != nil {
		room.countdown.signalStop()
		room.countdown = nil
	}

	cd := newActiveCountdown(info)
	room.countdown = cd
	s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventCountdownChanged, &model.CountdownChangedPayload{Countdown: &cd.info})

	go s.runCountdown(room.ID, cd, onComplete)
}

// stopCountdown cancels the active countdown, if any, and tells clients
// it is gone. Caller holds the room lock. Returns whether a countdown
// was stopped.
func (s *MultiplayerService) stopCountdown(room *ServerRoom) bool {
	if room.countdown == nil {
		return false
	}
	room.countdown.signalStop()
	room.countdown = nil
	s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventCountdownChanged, &model.CountdownChangedPayload{Countdown: nil})
	return true
}

// stopCountdownIfKind cancels the active countdown only when it is of
// the given kind. Caller holds the room lock.
func (s *MultiplayerService) stopCountdownIfKind(room *ServerRoom, kind model.CountdownKind) bool {
	if room.countdown == nil || room.countdown.info.Kind != kind {
		return false
	}
	return s.stopCountdown(room)
}

// skipToEnd makes the countdown fire immediately instead of waiting out
// the timer. The returned channel closes once the completion callback
// has run. The caller must release the room lock before waiting on it.
func (s *MultiplayerService) skipToEnd(room *ServerRoom) <-chan struct{} {
	if room.countdown == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	cd := room.countdown
	cd.signalSkip()
	return cd.done
}

// runCountdown waits out the timer, then re-acquires the room and, if
// this countdown is still the current one, clears it and fires the
// completion callback under the lock. A countdown that was stopped or
// replaced finds itself no longer current and exits without effect.
func (s *MultiplayerService) runCountdown(roomID int64, cd *activeCountdown, onComplete func(ctx context.Context, room *ServerRoom)) {
	defer close(cd.done)

	timer := time.NewTimer(cd.info.RemainingAt(time.Now()))
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-cd.skip:
	case <-cd.stop:
		// stopCountdown already cleared the slot and notified clients.
		return
	}

	usage, err := s.rooms.Acquire(roomID, false)
	if err != nil {
		// Room destroyed while we slept.
		return
	}
	defer usage.Release()

	room := usage.Value()
	if room == nil || room.countdown != cd {
		return
	}

	room.countdown = nil
	s.broadcaster.BroadcastToGroup(RoomGroup(room.ID), model.EventCountdownChanged, &model.CountdownChangedPayload{Countdown: nil})
	onComplete(context.Background(), room)
}
