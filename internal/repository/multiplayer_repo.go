package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rhythmhub/internal/model"
)

// MultiplayerRepo is the persistence contract for rooms, participants
// and playlist items.
type MultiplayerRepo interface {
	GetRoom(ctx context.Context, id int64) (*model.RoomRecord, error)
	MarkRoomActive(ctx context.Context, id int64) error
	UpdateRoomSettings(ctx context.Context, room *model.RoomRecord) error
	UpdateRoomHost(ctx context.Context, roomID, hostUserID int64) error
	EndMatch(ctx context.Context, roomID int64) error

	AddParticipant(ctx context.Context, roomID, userID int64) error
	RemoveParticipant(ctx context.Context, roomID, userID int64) error

	GetAllPlaylistItems(ctx context.Context, roomID int64) ([]*model.PlaylistItem, error)
	GetCurrentPlaylistItem(ctx context.Context, roomID int64) (*model.PlaylistItem, error)
	AddPlaylistItem(ctx context.Context, item *model.PlaylistItem) (int64, error)
	UpdatePlaylistItem(ctx context.Context, item *model.PlaylistItem) error
	RemovePlaylistItem(ctx context.Context, roomID, itemID int64) error
	MarkPlaylistItemPlayed(ctx context.Context, roomID, itemID int64) error

	GetBeatmapChecksum(ctx context.Context, beatmapID int64) (string, error)
	IsUserRestricted(ctx context.Context, userID int64) (bool, error)
}

type multiplayerRepo struct {
	rooms        *mongo.Collection
	participants *mongo.Collection
	playlist     *mongo.Collection
	beatmaps     *mongo.Collection
	users        *mongo.Collection
	counters     *mongo.Collection
}

func NewMultiplayerRepo(client *mongo.Client) MultiplayerRepo {
	db := client.Database("rhythmhub")
	return &multiplayerRepo{
		rooms:        db.Collection("rooms"),
		participants: db.Collection("room_participants"),
		playlist:     db.Collection("playlist_items"),
		beatmaps:     db.Collection("beatmaps"),
		users:        db.Collection("users"),
		counters:     db.Collection("counters"),
	}
}

func (r *multiplayerRepo) GetRoom(ctx context.Context, id int64) (*model.RoomRecord, error) {
	// Find the room by id
	var room model.RoomRecord
	err := r.rooms.FindOne(ctx, bson.M{"_id": id}).Decode(&room)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // Room not found
		}
		return nil, err
	}

	return &room, nil
}

func (r *multiplayerRepo) MarkRoomActive(ctx context.Context, id int64) error {
	_, err := r.rooms.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"active": true, "startedAt": time.Now()},
	})
	return err
}

func (r *multiplayerRepo) UpdateRoomSettings(ctx context.Context, room *model.RoomRecord) error {
	_, err := r.rooms.UpdateOne(ctx, bson.M{"_id": room.ID}, bson.M{
		"$set": bson.M{
			"name":              room.Name,
			"password":          room.Password,
			"matchType":         room.MatchType,
			"queueMode":         room.QueueMode,
			"autoStartDuration": room.AutoStartDuration,
		},
	})
	return err
}

func (r *multiplayerRepo) UpdateRoomHost(ctx context.Context, roomID, hostUserID int64) error {
	_, err := r.rooms.UpdateOne(ctx, bson.M{"_id": roomID}, bson.M{
		"$set": bson.M{"hostUserId": hostUserID},
	})
	return err
}

func (r *multiplayerRepo) EndMatch(ctx context.Context, roomID int64) error {
	_, err := r.rooms.UpdateOne(ctx, bson.M{"_id": roomID}, bson.M{
		"$set": bson.M{"active": false, "endedAt": time.Now()},
	})
	return err
}

func (r *multiplayerRepo) AddParticipant(ctx context.Context, roomID, userID int64) error {
	_, err := r.participants.UpdateOne(ctx,
		bson.M{"roomId": roomID, "userId": userID},
		bson.M{"$set": bson.M{"roomId": roomID, "userId": userID, "joinedAt": time.Now()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *multiplayerRepo) RemoveParticipant(ctx context.Context, roomID, userID int64) error {
	_, err := r.participants.DeleteOne(ctx, bson.M{"roomId": roomID, "userId": userID})
	return err
}

func (r *multiplayerRepo) GetAllPlaylistItems(ctx context.Context, roomID int64) ([]*model.PlaylistItem, error) {
	// Items come back in stored order; the queue re-derives ordering.
	cur, err := r.playlist.Find(ctx, bson.M{"roomId": roomID},
		options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var items []*model.PlaylistItem
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *multiplayerRepo) GetCurrentPlaylistItem(ctx context.Context, roomID int64) (*model.PlaylistItem, error) {
	var item model.PlaylistItem
	err := r.playlist.FindOne(ctx,
		bson.M{"roomId": roomID, "expired": false},
		options.FindOne().SetSort(bson.M{"playlistOrder": 1}),
	).Decode(&item)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // All items played
		}
		return nil, err
	}
	return &item, nil
}

func (r *multiplayerRepo) AddPlaylistItem(ctx context.Context, item *model.PlaylistItem) (int64, error) {
	id, err := r.nextID(ctx, "playlist_items")
	if err != nil {
		return 0, err
	}
	item.ID = id
	if _, err := r.playlist.InsertOne(ctx, item); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *multiplayerRepo) UpdatePlaylistItem(ctx context.Context, item *model.PlaylistItem) error {
	_, err := r.playlist.ReplaceOne(ctx, bson.M{"_id": item.ID}, item)
	return err
}

func (r *multiplayerRepo) RemovePlaylistItem(ctx context.Context, roomID, itemID int64) error {
	_, err := r.playlist.DeleteOne(ctx, bson.M{"_id": itemID, "roomId": roomID})
	return err
}

func (r *multiplayerRepo) MarkPlaylistItemPlayed(ctx context.Context, roomID, itemID int64) error {
	_, err := r.playlist.UpdateOne(ctx,
		bson.M{"_id": itemID, "roomId": roomID},
		bson.M{"$set": bson.M{"expired": true, "playedAt": time.Now()}},
	)
	return err
}

func (r *multiplayerRepo) GetBeatmapChecksum(ctx context.Context, beatmapID int64) (string, error) {
	var doc struct {
		Checksum string `bson:"checksum"`
	}
	err := r.beatmaps.FindOne(ctx, bson.M{"_id": beatmapID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return "", nil // Beatmap not found
		}
		return "", err
	}
	return doc.Checksum, nil
}

func (r *multiplayerRepo) IsUserRestricted(ctx context.Context, userID int64) (bool, error) {
	var doc struct {
		Restricted bool `bson:"restricted"`
	}
	err := r.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, err
	}
	return doc.Restricted, nil
}

// nextID reserves the next value of a named sequence.
func (r *multiplayerRepo) nextID(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}
