package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Relation is the stored standing between two users.
type Relation string

const (
	RelationNone   Relation = "none"
	RelationFriend Relation = "friend"
	RelationBlock  Relation = "block"
)

// RelationRepo answers friend/block queries for invites and messaging.
type RelationRepo interface {
	GetRelation(ctx context.Context, fromUserID, toUserID int64) (Relation, error)
	BlocksPMs(ctx context.Context, userID int64) (bool, error)
}

type relationRepo struct {
	relations *mongo.Collection
	users     *mongo.Collection
}

func NewRelationRepo(client *mongo.Client) RelationRepo {
	db := client.Database("rhythmhub")
	return &relationRepo{
		relations: db.Collection("user_relations"),
		users:     db.Collection("users"),
	}
}

func (r *relationRepo) GetRelation(ctx context.Context, fromUserID, toUserID int64) (Relation, error) {
	var doc struct {
		Relation Relation `bson:"relation"`
	}
	err := r.relations.FindOne(ctx, bson.M{
		"fromUserId": fromUserID,
		"toUserId":   toUserID,
	}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return RelationNone, nil
		}
		return RelationNone, err
	}
	return doc.Relation, nil
}

func (r *relationRepo) BlocksPMs(ctx context.Context, userID int64) (bool, error) {
	var doc struct {
		BlocksPMs bool `bson:"blocksPMs"`
	}
	err := r.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, err
	}
	return doc.BlocksPMs, nil
}
