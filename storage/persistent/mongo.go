package persistent

import (
	"context"
	"errors"
	"fmt"
	"newsblog/storage"
	"newsblog/storage/models"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Post struct {
	Id        int64     `bson:"_id" json:"id"`
	Title     string    `bson:"title" json:"title"`
	Content   string    `bson:"content" json:"content"`
	ImageUrl  *string   `bson:"imageUrl" json:"image_url"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

func (p *Post) ToModel() models.Post {
	return models.Post{
		Id:        p.Id,
		Title:     p.Title,
		Content:   p.Content,
		ImageUrl:  p.ImageUrl,
		CreatedAt: p.CreatedAt.UTC(),
	}
}

type Subscriber struct {
	Id           int64     `bson:"_id"`
	Email        string    `bson:"email"`
	SubscribedAt time.Time `bson:"subscribedAt"`
}

func (s *Subscriber) ToModel() models.Subscriber {
	return models.Subscriber{
		Id:           s.Id,
		Email:        s.Email,
		SubscribedAt: s.SubscribedAt.UTC(),
	}
}

type counter struct {
	Seq int64 `bson:"seq"`
}

type MongoStorage struct {
	client      *mongo.Client
	posts       *mongo.Collection
	subscribers *mongo.Collection
	counters    *mongo.Collection
}

// nextId hands out integer ids from the counters collection. The counter only
// ever grows, so ids of deleted rows are never reused.
func (s *MongoStorage) nextId(ctx context.Context, name string) (int64, error) {
	var c counter
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %s: %w", name, err.Error(), storage.InternalError)
	}
	return c.Seq, nil
}

func (s *MongoStorage) AddPost(ctx context.Context, title string, content string, imageUrl *string) (models.Post, error) {
	if err := storage.ValidateNewPost(title, content); err != nil {
		return models.Post{}, err
	}
	id, err := s.nextId(ctx, "posts")
	if err != nil {
		return models.Post{}, err
	}
	post := Post{
		Id:        id,
		Title:     title,
		Content:   content,
		ImageUrl:  imageUrl,
		CreatedAt: models.Now(),
	}
	if _, err := s.posts.InsertOne(ctx, post); err != nil {
		return models.Post{}, fmt.Errorf("failed to insert post: %s: %w", err.Error(), storage.InternalError)
	}
	return post.ToModel(), nil
}

func (s *MongoStorage) GetPosts(ctx context.Context) ([]models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.posts.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find posts: %s: %w", err.Error(), storage.InternalError)
	}
	defer closeCursor(ctx, cursor)

	posts := make([]models.Post, 0)
	for cursor.Next(ctx) {
		var p Post
		if err := cursor.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode error: %s: %w", err.Error(), storage.InternalError)
		}
		posts = append(posts, p.ToModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %s: %w", err.Error(), storage.InternalError)
	}
	return posts, nil
}

func (s *MongoStorage) GetPost(ctx context.Context, id int64) (models.Post, error) {
	var result Post
	err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Post{}, fmt.Errorf("no document with id %d: %w", id, storage.NotFoundError)
		}
		return models.Post{}, fmt.Errorf("failed to find post: %s: %w", err.Error(), storage.InternalError)
	}
	return result.ToModel(), nil
}

func (s *MongoStorage) PatchPost(ctx context.Context, id int64, patch models.PostPatch) (models.Post, error) {
	if err := storage.ValidatePatch(patch); err != nil {
		return models.Post{}, err
	}
	if patch.IsEmpty() {
		return s.GetPost(ctx, id)
	}

	set := bson.M{}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Content != nil {
		set["content"] = *patch.Content
	}
	if patch.ClearImage {
		set["imageUrl"] = nil
	} else if patch.ImageUrl != nil {
		set["imageUrl"] = *patch.ImageUrl
	}

	var result Post
	opts := options.FindOneAndUpdate().
		SetUpsert(false).
		SetReturnDocument(options.After)
	err := s.posts.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Post{}, fmt.Errorf("no document with id %d: %w", id, storage.NotFoundError)
		}
		return models.Post{}, fmt.Errorf("failed to update post: %s: %w", err.Error(), storage.InternalError)
	}
	return result.ToModel(), nil
}

func (s *MongoStorage) DeletePost(ctx context.Context, id int64) error {
	res, err := s.posts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete post: %s: %w", err.Error(), storage.InternalError)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("no document with id %d: %w", id, storage.NotFoundError)
	}
	return nil
}

func (s *MongoStorage) AddSubscriber(ctx context.Context, email string) (models.Subscriber, error) {
	email, err := storage.NormalizeSubscriberEmail(email)
	if err != nil {
		return models.Subscriber{}, err
	}
	id, err := s.nextId(ctx, "subscribers")
	if err != nil {
		return models.Subscriber{}, err
	}
	sub := Subscriber{
		Id:           id,
		Email:        email,
		SubscribedAt: models.Now(),
	}
	if _, err := s.subscribers.InsertOne(ctx, sub); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Subscriber{}, fmt.Errorf("email %s already subscribed: %w", email, storage.ConflictError)
		}
		return models.Subscriber{}, fmt.Errorf("failed to insert subscriber: %s: %w", err.Error(), storage.InternalError)
	}
	return sub.ToModel(), nil
}

func (s *MongoStorage) GetSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	opts := options.Find().SetSort(bson.D{{Key: "subscribedAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.subscribers.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find subscribers: %s: %w", err.Error(), storage.InternalError)
	}
	defer closeCursor(ctx, cursor)

	subscribers := make([]models.Subscriber, 0)
	for cursor.Next(ctx) {
		var sub Subscriber
		if err := cursor.Decode(&sub); err != nil {
			return nil, fmt.Errorf("decode error: %s: %w", err.Error(), storage.InternalError)
		}
		subscribers = append(subscribers, sub.ToModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscribers: %s: %w", err.Error(), storage.InternalError)
	}
	return subscribers, nil
}

func (s *MongoStorage) DeleteSubscriber(ctx context.Context, id int64) (models.Subscriber, error) {
	var result Subscriber
	err := s.subscribers.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Subscriber{}, fmt.Errorf("no subscriber with id %d: %w", id, storage.NotFoundError)
		}
		return models.Subscriber{}, fmt.Errorf("failed to delete subscriber: %s: %w", err.Error(), storage.InternalError)
	}
	return result.ToModel(), nil
}

func (s *MongoStorage) Close() error {
	return s.client.Disconnect(context.Background())
}

func closeCursor(ctx context.Context, cursor *mongo.Cursor) {
	if err := cursor.Close(ctx); err != nil {
		log.WithField("err", err).Warn("Cursor closing failed")
	}
}

func CreateMongoStorage(dbUrl, dbName string) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return createMongoStorage(ctx, options.Client().ApplyURI(dbUrl), dbName)
}

func createMongoStorage(ctx context.Context, opts *options.ClientOptions, dbName string) (*MongoStorage, error) {
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	db := client.Database(dbName)
	s := &MongoStorage{
		client:      client,
		posts:       db.Collection("posts"),
		subscribers: db.Collection("subscribers"),
		counters:    db.Collection("counters"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			log.WithField("err", closeErr).Warn("Failed to disconnect from mongo")
		}
		return nil, err
	}
	return s, nil
}

func (s *MongoStorage) ensureIndexes(ctx context.Context) error {
	if err := ensurePostsIndexes(ctx, s.posts); err != nil {
		return err
	}
	return ensureSubscribersIndexes(ctx, s.subscribers)
}
