package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"rhythmhub/internal/model"
)

// AccountRepo looks up user accounts for sign-in.
type AccountRepo interface {
	FindByUsername(ctx context.Context, username string) (*model.Account, error)
}

type accountRepo struct {
	users *mongo.Collection
}

// NewAccountRepo creates a new Mongo account repository
func NewAccountRepo(client *mongo.Client) AccountRepo {
	db := client.Database("rhythmhub")
	return &accountRepo{users: db.Collection("users")}
}

// FindByUsername finds an account by username. Returns (nil, nil) when
// no account exists.
func (r *accountRepo) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	var account model.Account
	err := r.users.FindOne(ctx, bson.M{"username": username}).Decode(&account)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &account, nil
}
