package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rhythmhub/internal/entity"
	"rhythmhub/internal/model"
)

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastToGroup(group string, event model.EventType, payload any)     {}
func (nopBroadcaster) BroadcastToUser(userID int64, event model.EventType, payload any)      {}
func (nopBroadcaster) BroadcastToConnection(connID string, event model.EventType, payload any) {}
func (nopBroadcaster) AddUserToGroup(userID int64, group string)                             {}
func (nopBroadcaster) RemoveUserFromGroup(userID int64, group string)                        {}
func (nopBroadcaster) RequestDisconnect(connID string)                                       {}

func newCountdownFixture(t *testing.T) (*MultiplayerService, *entity.Store[ServerRoom]) {
	t.Helper()
	rooms := entity.NewStore[ServerRoom]()
	svc := NewMultiplayerService(rooms, entity.NewStore[ClientState](), nil, nil, nil, nil, NewRulesLegality())
	svc.SetBroadcaster(nopBroadcaster{})

	usage, err := rooms.Acquire(1, true)
	require.NoError(t, err)
	usage.SetValue(&ServerRoom{ID: 1, State: model.RoomOpen})
	usage.Release()
	return svc, rooms
}

func withRoom(t *testing.T, rooms *entity.Store[ServerRoom], fn func(room *ServerRoom)) {
	t.Helper()
	usage, err := rooms.Acquire(1, false)
	require.NoError(t, err)
	defer usage.Release()
	fn(usage.Value())
}

func TestCountdownSkipFiresCompletionEarly(t *testing.T) {
	svc, rooms := newCountdownFixture(t)

	fired := make(chan struct{})
	var done <-chan struct{}
	withRoom(t, rooms, func(room *ServerRoom) {
		svc.startCountdown(room, model.Countdown{
			Kind:      model.CountdownMatchStart,
			Duration:  time.Hour,
			StartedAt: time.Now(),
		}, func(ctx context.Context, room *ServerRoom) {
			close(fired)
		})
		done = svc.skipToEnd(room)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("skipped countdown did not finish")
	}

	select {
	case <-fired:
	default:
		t.Fatal("completion callback was not invoked")
	}

	withRoom(t, rooms, func(room *ServerRoom) {
		assert.Nil(t, room.countdown)
	})
}

func TestCountdownStopSuppressesCompletion(t *testing.T) {
	svc, rooms := newCountdownFixture(t)

	fired := make(chan struct{})
	var done <-chan struct{}
	withRoom(t, rooms, func(room *ServerRoom) {
		svc.startCountdown(room, model.Countdown{
			Kind:      model.CountdownMatchStart,
			Duration:  time.Hour,
			StartedAt: time.Now(),
		}, func(ctx context.Context, room *ServerRoom) {
			close(fired)
		})
		done = room.countdown.done
		svc.stopCountdown(room)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stopped countdown did not wind down")
	}

	select {
	case <-fired:
		t.Fatal("completion callback ran after stop")
	default:
	}
}

func TestCountdownReplacementSupersedesOld(t *testing.T) {
	svc, rooms := newCountdownFixture(t)

	firstFired := make(chan struct{})
	secondFired := make(chan struct{})
	var firstDone, secondDone <-chan struct{}

	withRoom(t, rooms, func(room *ServerRoom) {
		svc.startCountdown(room, model.Countdown{
			Kind:      model.CountdownMatchStart,
			Duration:  time.Hour,
			StartedAt: time.Now(),
		}, func(ctx context.Context, room *ServerRoom) {
			close(firstFired)
		})
		firstDone = room.countdown.done

		svc.startCountdown(room, model.Countdown{
			Kind:      model.CountdownMatchStart,
			Duration:  50 * time.Millisecond,
			StartedAt: time.Now(),
		}, func(ctx context.Context, room *ServerRoom) {
			close(secondFired)
		})
		secondDone = room.countdown.done
	})

	select {
	case <-firstDone:
	case <-time.After(time.Second):
		t.Fatal("replaced countdown did not exit")
	}

	select {
	case <-secondDone:
	case <-time.After(time.Second):
		t.Fatal("replacement countdown did not finish")
	}

	select {
	case <-secondFired:
	default:
		t.Fatal("replacement countdown completion was not invoked")
	}

	select {
	case <-firstFired:
		t.Fatal("replaced countdown completion ran")
	default:
	}

	withRoom(t, rooms, func(room *ServerRoom) {
		assert.Nil(t, room.countdown)
	})
}

func TestStopCountdownWithoutActiveIsNoOp(t *testing.T) {
	svc, rooms := newCountdownFixture(t)
	withRoom(t, rooms, func(room *ServerRoom) {
		assert.False(t, svc.stopCountdown(room))
		assert.False(t, svc.stopCountdownIfKind(room, model.CountdownForceStart))
	})
}
