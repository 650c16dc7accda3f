package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"rhythmhub/internal/model"
	"rhythmhub/internal/repository"
)

// PlaylistQueue owns a room's playlist: the ordered upcoming items, the
// current item, queue-mode permissions, and item rotation at match end.
// All methods are called with the room lock held.
type PlaylistQueue struct {
	roomID int64
	mode   model.QueueMode
	items  []*model.PlaylistItem

	repo   repository.MultiplayerRepo
	lookup *BeatmapLookup
	rules  RulesLegality
}

func NewPlaylistQueue(roomID int64, mode model.QueueMode, repo repository.MultiplayerRepo, lookup *BeatmapLookup, rules RulesLegality) *PlaylistQueue {
	return &PlaylistQueue{
		roomID: roomID,
		mode:   mode,
		repo:   repo,
		lookup: lookup,
		rules:  rules,
	}
}

// Initialize loads the room's items from persistence and derives their
// ordering for the active mode.
func (q *PlaylistQueue) Initialize(ctx context.Context) error {
	items, err := q.repo.GetAllPlaylistItems(ctx, q.roomID)
	if err != nil {
		return fmt.Errorf("failed to load playlist: %w", err)
	}
	q.items = items
	_, err = q.updateOrder(ctx)
	return err
}

// CurrentItem returns the lowest non-expired item by order, or nil when
// every item has been played.
func (q *PlaylistQueue) CurrentItem() *model.PlaylistItem {
	var current *model.PlaylistItem
	for _, item := range q.items {
		if item.Expired {
			continue
		}
		if current == nil || item.PlaylistOrder < current.PlaylistOrder {
			current = item
		}
	}
	return current
}

// UpcomingItems returns the non-expired items in play order.
func (q *PlaylistQueue) UpcomingItems() []*model.PlaylistItem {
	var out []*model.PlaylistItem
	for _, item := range q.items {
		if !item.Expired {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PlaylistOrder < out[j].PlaylistOrder
	})
	return out
}

// SnapshotItems deep-copies every item, expired included.
func (q *PlaylistQueue) SnapshotItems() []model.PlaylistItem {
	out := make([]model.PlaylistItem, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, *item.Clone())
	}
	return out
}

// QueueChange describes what a queue operation did, so the coordinator
// can broadcast the matching playlist events.
type QueueChange struct {
	Added   []*model.PlaylistItem
	Changed []*model.PlaylistItem
	Removed []*model.PlaylistItem
}

// AddItem validates and appends an item under the active mode. In
// host-only mode the single pending item is edited in place instead.
func (q *PlaylistQueue) AddItem(ctx context.Context, item *model.PlaylistItem, userID int64, isHost bool) (*QueueChange, error) {
	if q.mode == model.QueueHostOnly {
		if !isHost {
			return nil, ErrNotHost
		}
		if current := q.CurrentItem(); current != nil {
			return q.editItem(ctx, current, item)
		}
	}

	if err := q.validateItem(ctx, item); err != nil {
		return nil, err
	}

	item.RoomID = q.roomID
	item.OwnerID = userID
	item.Expired = false
	item.PlayedAt = nil

	id, err := q.repo.AddPlaylistItem(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to persist playlist item: %w", err)
	}
	item.ID = id
	q.items = append(q.items, item)

	change := &QueueChange{Added: []*model.PlaylistItem{item}}
	reordered, err := q.updateOrder(ctx)
	if err != nil {
		return nil, err
	}
	change.Changed = excludeItem(reordered, item)
	return change, nil
}

// EditItem replaces the content of a pending item. Permissions follow
// the mode: host-only rooms restrict edits to the host, the open modes
// restrict them to the item's owner.
func (q *PlaylistQueue) EditItem(ctx context.Context, item *model.PlaylistItem, userID int64, isHost bool) (*QueueChange, error) {
	existing := q.findItem(item.ID)
	if existing == nil || existing.Expired {
		return nil, ErrInvalidState
	}
	if !q.mayModify(existing, userID, isHost) {
		return nil, ErrInvalidState
	}
	return q.editItem(ctx, existing, item)
}

// RemoveItem deletes a pending item under the mode's permissions.
func (q *PlaylistQueue) RemoveItem(ctx context.Context, itemID, userID int64, isHost bool) (*QueueChange, error) {
	existing := q.findItem(itemID)
	if existing == nil || existing.Expired {
		return nil, ErrInvalidState
	}
	if !q.mayModify(existing, userID, isHost) {
		return nil, ErrInvalidState
	}

	if err := q.repo.RemovePlaylistItem(ctx, q.roomID, itemID); err != nil {
		return nil, fmt.Errorf("failed to remove playlist item: %w", err)
	}
	for i, it := range q.items {
		if it.ID == itemID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}

	change := &QueueChange{Removed: []*model.PlaylistItem{existing}}
	reordered, err := q.updateOrder(ctx)
	if err != nil {
		return nil, err
	}
	change.Changed = reordered
	return change, nil
}

// FinishCurrentItem expires the current item after gameplay and selects
// its successor: host-only rooms get a fresh clone for replay, the open
// modes simply advance to the next pending item.
func (q *PlaylistQueue) FinishCurrentItem(ctx context.Context) (*QueueChange, error) {
	current := q.CurrentItem()
	if current == nil {
		return &QueueChange{}, nil
	}

	now := time.Now()
	current.Expired = true
	current.PlayedAt = &now
	if err := q.repo.MarkPlaylistItemPlayed(ctx, q.roomID, current.ID); err != nil {
		return nil, fmt.Errorf("failed to expire playlist item: %w", err)
	}

	change := &QueueChange{Changed: []*model.PlaylistItem{current}}

	if q.mode == model.QueueHostOnly {
		replay := current.Clone()
		replay.Expired = false
		replay.PlayedAt = nil
		id, err := q.repo.AddPlaylistItem(ctx, replay)
		if err != nil {
			return nil, fmt.Errorf("failed to persist playlist item: %w", err)
		}
		replay.ID = id
		q.items = append(q.items, replay)
		change.Added = []*model.PlaylistItem{replay}
	}

	reordered, err := q.updateOrder(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range reordered {
		if !containsItem(change.Changed, item) && !containsItem(change.Added, item) {
			change.Changed = append(change.Changed, item)
		}
	}
	return change, nil
}

// ChangeMode switches the queue policy and re-derives item ordering.
func (q *PlaylistQueue) ChangeMode(ctx context.Context, mode model.QueueMode) ([]*model.PlaylistItem, error) {
	if q.mode == mode {
		return nil, nil
	}
	q.mode = mode
	return q.updateOrder(ctx)
}

func (q *PlaylistQueue) findItem(id int64) *model.PlaylistItem {
	for _, item := range q.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (q *PlaylistQueue) mayModify(item *model.PlaylistItem, userID int64, isHost bool) bool {
	if q.mode == model.QueueHostOnly {
		return isHost
	}
	return item.OwnerID == userID
}

func (q *PlaylistQueue) editItem(ctx context.Context, existing *model.PlaylistItem, incoming *model.PlaylistItem) (*QueueChange, error) {
	if err := q.validateItem(ctx, incoming); err != nil {
		return nil, err
	}

	existing.BeatmapID = incoming.BeatmapID
	existing.BeatmapChecksum = incoming.BeatmapChecksum
	existing.RulesetID = incoming.RulesetID
	existing.RequiredMods = append([]model.Mod(nil), incoming.RequiredMods...)
	existing.AllowedMods = append([]model.Mod(nil), incoming.AllowedMods...)

	if err := q.repo.UpdatePlaylistItem(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update playlist item: %w", err)
	}
	return &QueueChange{Changed: []*model.PlaylistItem{existing}}, nil
}

// validateItem delegates ruleset and mod-set legality to the rules
// binding, then checks the beatmap checksum against persistence.
func (q *PlaylistQueue) validateItem(ctx context.Context, item *model.PlaylistItem) error {
	if err := q.rules.ValidateItem(item.RulesetID, item.RequiredMods, item.AllowedMods); err != nil {
		return err
	}

	checksum, err := q.lookup.Checksum(ctx, item.BeatmapID)
	if err != nil {
		return fmt.Errorf("failed to look up beatmap: %w", err)
	}
	if checksum == "" || checksum != item.BeatmapChecksum {
		return ErrInvalidState
	}
	return nil
}

// updateOrder recomputes PlaylistOrder for the pending items under the
// active mode and persists any that moved. Round-robin interleaves
// per-owner sublists so ownership rotates fairly; the other modes play
// in insertion order.
func (q *PlaylistQueue) updateOrder(ctx context.Context) ([]*model.PlaylistItem, error) {
	pending := make([]*model.PlaylistItem, 0, len(q.items))
	for _, item := range q.items {
		if !item.Expired {
			pending = append(pending, item)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })

	var ordered []*model.PlaylistItem
	if q.mode == model.QueueAllPlayersRoundRobin {
		ordered = interleaveByOwner(pending)
	} else {
		ordered = pending
	}

	var changed []*model.PlaylistItem
	for i, item := range ordered {
		if item.PlaylistOrder == i {
			continue
		}
		item.PlaylistOrder = i
		if err := q.repo.UpdatePlaylistItem(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to update playlist item: %w", err)
		}
		changed = append(changed, item)
	}
	return changed, nil
}

// interleaveByOwner rotates through each owner's items in turn: the
// first item of every owner, then the second of every owner, and so on.
// Owners cycle in order of their earliest item.
func interleaveByOwner(items []*model.PlaylistItem) []*model.PlaylistItem {
	var owners []int64
	byOwner := make(map[int64][]*model.PlaylistItem)
	for _, item := range items {
		if _, ok := byOwner[item.OwnerID]; !ok {
			owners = append(owners, item.OwnerID)
		}
		byOwner[item.OwnerID] = append(byOwner[item.OwnerID], item)
	}

	out := make([]*model.PlaylistItem, 0, len(items))
	for round := 0; len(out) < len(items); round++ {
		for _, owner := range owners {
			if round < len(byOwner[owner]) {
				out = append(out, byOwner[owner][round])
			}
		}
	}
	return out
}

func containsItem(items []*model.PlaylistItem, item *model.PlaylistItem) bool {
	for _, it := range items {
		if it == item {
			return true
		}
	}
	return false
}

func excludeItem(items []*model.PlaylistItem, exclude *model.PlaylistItem) []*model.PlaylistItem {
	var out []*model.PlaylistItem
	for _, it := range items {
		if it != exclude {
			out = append(out, it)
		}
	}
	return out
}
