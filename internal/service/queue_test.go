package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rhythmhub/internal/model"
	"rhythmhub/internal/service"
)

func newQueue(t *testing.T, mode model.QueueMode) (*service.PlaylistQueue, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	repo.checksums[10] = "abc123"
	repo.checksums[11] = "def456"

	q := service.NewPlaylistQueue(7, mode, repo, service.NewBeatmapLookup(nil, repo), service.NewRulesLegality())
	require.NoError(t, q.Initialize(context.Background()))
	return q, repo
}

func testItem(beatmapID int64) *model.PlaylistItem {
	checksum := "abc123"
	if beatmapID == 11 {
		checksum = "def456"
	}
	return &model.PlaylistItem{
		BeatmapID:       beatmapID,
		BeatmapChecksum: checksum,
		AllowedMods:     []model.Mod{{Acronym: "HD"}},
	}
}

func TestQueueAddValidation(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t, model.QueueAllPlayers)

	bad := testItem(10)
	bad.RulesetID = 9
	_, err := q.AddItem(ctx, bad, 1, false)
	assert.ErrorIs(t, err, service.ErrInvalidState)

	bad = testItem(10)
	bad.RequiredMods = []model.Mod{{Acronym: "HD"}}
	_, err = q.AddItem(ctx, bad, 1, false)
	assert.ErrorIs(t, err, service.ErrInvalidState)

	bad = testItem(10)
	bad.BeatmapChecksum = "mismatch"
	_, err = q.AddItem(ctx, bad, 1, false)
	assert.ErrorIs(t, err, service.ErrInvalidState)

	bad = testItem(10)
	bad.BeatmapID = 999
	_, err = q.AddItem(ctx, bad, 1, false)
	assert.ErrorIs(t, err, service.ErrInvalidState)

	change, err := q.AddItem(ctx, testItem(10), 1, false)
	require.NoError(t, err)
	require.Len(t, change.Added, 1)
	assert.Equal(t, int64(1), change.Added[0].OwnerID)
}

func TestQueueHostOnlyEditsInPlace(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t, model.QueueHostOnly)

	_, err := q.AddItem(ctx, testItem(10), 1, false)
	assert.ErrorIs(t, err, service.ErrNotHost)

	change, err := q.AddItem(ctx, testItem(10), 1, true)
	require.NoError(t, err)
	require.Len(t, change.Added, 1)
	itemID := change.Added[0].ID

	// A second add re-edits the single pending item.
	change, err = q.AddItem(ctx, testItem(11), 1, true)
	require.NoError(t, err)
	assert.Empty(t, change.Added)
	require.Len(t, change.Changed, 1)
	assert.Equal(t, itemID, change.Changed[0].ID)
	assert.Equal(t, int64(11), q.CurrentItem().BeatmapID)
}

func TestQueueOwnerPermissions(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t, model.QueueAllPlayers)

	change, err := q.AddItem(ctx, testItem(10), 1, true)
	require.NoError(t, err)
	itemID := change.Added[0].ID

	edit := testItem(11)
	edit.ID = itemID
	_, err = q.EditItem(ctx, edit, 2, false)
	assert.ErrorIs(t, err, service.ErrInvalidState)

	_, err = q.RemoveItem(ctx, itemID, 2, false)
	assert.ErrorIs(t, err, service.ErrInvalidState)

	_, err = q.EditItem(ctx, edit, 1, true)
	require.NoError(t, err)
	assert.Equal(t, int64(11), q.CurrentItem().BeatmapID)

	change, err = q.RemoveItem(ctx, itemID, 1, true)
	require.NoError(t, err)
	require.Len(t, change.Removed, 1)
	assert.Nil(t, q.CurrentItem())
}

func TestQueueFinishHostOnlyClonesForReplay(t *testing.T) {
	ctx := context.Background()
	q, repo := newQueue(t, model.QueueHostOnly)

	change, err := q.AddItem(ctx, testItem(10), 1, true)
	require.NoError(t, err)
	original := change.Added[0].ID

	change, err = q.FinishCurrentItem(ctx)
	require.NoError(t, err)
	require.Len(t, change.Added, 1)

	current := q.CurrentItem()
	require.NotNil(t, current)
	assert.NotEqual(t, original, current.ID)
	assert.Equal(t, int64(10), current.BeatmapID)
	assert.False(t, current.Expired)

	stored := repo.items[original]
	require.NotNil(t, stored)
	assert.True(t, stored.Expired)
	assert.NotNil(t, stored.PlayedAt)
}

func TestQueueFinishAllPlayersAdvances(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t, model.QueueAllPlayers)

	_, err := q.AddItem(ctx, testItem(10), 1, false)
	require.NoError(t, err)
	change, err := q.AddItem(ctx, testItem(11), 2, false)
	require.NoError(t, err)
	next := change.Added[0].ID

	change, err = q.FinishCurrentItem(ctx)
	require.NoError(t, err)
	assert.Empty(t, change.Added)

	current := q.CurrentItem()
	require.NotNil(t, current)
	assert.Equal(t, next, current.ID)

	// Finishing the last item leaves the queue empty.
	_, err = q.FinishCurrentItem(ctx)
	require.NoError(t, err)
	assert.Nil(t, q.CurrentItem())

	_, err = q.FinishCurrentItem(ctx)
	require.NoError(t, err)
}

func TestQueueRoundRobinInterleavesOwners(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t, model.QueueAllPlayersRoundRobin)

	// User 1 queues three items, user 2 queues two.
	var ids []int64
	for _, owner := range []int64{1, 1, 1, 2, 2} {
		change, err := q.AddItem(ctx, testItem(10), owner, false)
		require.NoError(t, err)
		ids = append(ids, change.Added[0].ID)
	}

	upcoming := q.UpcomingItems()
	require.Len(t, upcoming, 5)

	var owners []int64
	for _, item := range upcoming {
		owners = append(owners, item.OwnerID)
	}
	assert.Equal(t, []int64{1, 2, 1, 2, 1}, owners)

	// Switching to sequential mode restores insertion order.
	_, err := q.ChangeMode(ctx, model.QueueAllPlayers)
	require.NoError(t, err)

	upcoming = q.UpcomingItems()
	var got []int64
	for _, item := range upcoming {
		got = append(got, item.ID)
	}
	assert.Equal(t, ids, got)
}

func TestQueueInitializeLoadsPersistedItems(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.checksums[10] = "abc123"

	now := time.Now()
	_, err := repo.AddPlaylistItem(ctx, &model.PlaylistItem{RoomID: 7, OwnerID: 1, BeatmapID: 10, BeatmapChecksum: "abc123", Expired: true, PlayedAt: &now})
	require.NoError(t, err)
	_, err = repo.AddPlaylistItem(ctx, &model.PlaylistItem{RoomID: 7, OwnerID: 1, BeatmapID: 10, BeatmapChecksum: "abc123"})
	require.NoError(t, err)

	q := service.NewPlaylistQueue(7, model.QueueAllPlayers, repo, service.NewBeatmapLookup(nil, repo), service.NewRulesLegality())
	require.NoError(t, q.Initialize(ctx))

	current := q.CurrentItem()
	require.NotNil(t, current)
	assert.Equal(t, int64(2), current.ID)
	assert.Len(t, q.SnapshotItems(), 2)
}
