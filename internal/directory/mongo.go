package directory

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cipherchat/internal/model"
)

type (
	// Mongo serves the relay-side directory view. Only public identities
	// are stored; private keys never reach the relay.
	Mongo struct {
		collection *mongo.Collection
	}
)

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		collection: db.Collection("users"),
	}
}

// Ensure provisions a public identity if it is not present yet.
func (m *Mongo) Ensure(ctx context.Context, user model.User) error {
	filter := bson.M{"id": user.ID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"id":         user.ID,
			"name":       user.Name,
			"public_key": user.PublicKey,
		},
	}

	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("provision user %q: %w", user.ID, err)
	}
	return nil
}

func (m *Mongo) PublicKey(ctx context.Context, id string) ([]byte, error) {
	filter := bson.M{"id": id}

	var user model.User
	err := m.collection.FindOne(ctx, filter).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUser, id)
	}
	if err != nil {
		return nil, err
	}
	return user.PublicKey, nil
}

func (m *Mongo) Contacts(ctx context.Context, selfID string) ([]model.User, error) {
	filter := bson.M{"id": bson.M{"$ne": selfID}}

	cursor, err := m.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []model.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PrivateKey = nil
	}
	return users, nil
}
