package persistent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"newsblog/storage"
	"newsblog/storage/storagetest"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestSQLiteStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		s, err := CreateSQLiteStorage(filepath.Join(t.TempDir(), "blog.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteStorageSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blog.db")

	s, err := CreateSQLiteStorage(path)
	require.NoError(t, err)
	p, err := s.AddPost(ctx, "Hi", "World", nil)
	require.NoError(t, err)
	_, err = s.AddSubscriber(ctx, "a@b.com")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = CreateSQLiteStorage(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetPost(ctx, p.Id)
	require.NoError(t, err)
	require.Equal(t, "Hi", got.Title)
	require.Nil(t, got.ImageUrl)
	require.True(t, p.CreatedAt.Equal(got.CreatedAt))

	_, err = s.AddSubscriber(ctx, "A@b.com")
	require.ErrorIs(t, err, storage.ConflictError)
}

// Runs only against a live server, e.g. MONGO_URL=mongodb://localhost:27017.
func TestMongoStorage(t *testing.T) {
	mongoUrl := os.Getenv("MONGO_URL")
	if mongoUrl == "" {
		t.Skip("MONGO_URL not set")
	}
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		dbName := fmt.Sprintf("newsblog_test_%d", time.Now().UnixNano())
		s, err := CreateMongoStorage(mongoUrl, dbName)
		require.NoError(t, err)
		t.Cleanup(func() {
			s.client.Database(dbName).Drop(context.Background())
			s.Close()
		})
		return s
	})
}

func TestCreateMongoStorageDisconnectsOnSetupFailure(t *testing.T) {
	closed := make(chan struct{}, 1)
	opts := options.Client().
		ApplyURI("mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200&connectTimeoutMS=200").
		SetServerMonitor(&event.ServerMonitor{
			TopologyClosed: func(*event.TopologyClosedEvent) {
				select {
				case closed <- struct{}{}:
				default:
				}
			},
		})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := createMongoStorage(ctx, opts, "newsblog_test")
	require.Error(t, err)
	require.Nil(t, s)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("mongo client still connected after failed setup")
	}
}
