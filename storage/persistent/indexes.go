package persistent

import (
	"context"
	"fmt"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/bsonx"
	"time"
)

func ensurePostsIndexes(ctx context.Context, posts *mongo.Collection) error {
	indexModels := []mongo.IndexModel{
		{
			Keys: bsonx.Doc{
				{Key: "createdAt", Value: bsonx.Int32(-1)},
				{Key: "_id", Value: bsonx.Int32(-1)},
			},
		},
	}
	opts := options.CreateIndexes().SetMaxTime(10 * time.Second)

	_, err := posts.Indexes().CreateMany(ctx, indexModels, opts)
	if err != nil {
		return fmt.Errorf("posts: failed to ensure indexes %w", err)
	}
	return nil
}

func ensureSubscribersIndexes(ctx context.Context, subscribers *mongo.Collection) error {
	indexModels := []mongo.IndexModel{
		{
			Keys: bsonx.Doc{
				{Key: "email", Value: bsonx.Int32(1)},
			},
			Options: options.Index().SetUnique(true),
		},
	}
	opts := options.CreateIndexes().SetMaxTime(10 * time.Second)

	_, err := subscribers.Indexes().CreateMany(ctx, indexModels, opts)
	if err != nil {
		return fmt.Errorf("subscribers: failed to ensure indexes %w", err)
	}
	return nil
}
