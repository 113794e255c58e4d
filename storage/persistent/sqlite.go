package persistent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"newsblog/storage"
	"newsblog/storage/models"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Fixed width so that ORDER BY on the text column is chronological.
const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

type SQLiteStorage struct {
	db *sql.DB
}

// CreateSQLiteStorage opens (or creates) the database file at path and runs
// migrations. Every write is a single statement; concurrent writers queue on
// busy_timeout and the UNIQUE constraint on email decides signup races.
func CreateSQLiteStorage(path string) (*SQLiteStorage, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SQLiteStorage{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			image_url TEXT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);`,
		`CREATE TABLE IF NOT EXISTS subscribers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			subscribed_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (models.Post, error) {
	var (
		p         models.Post
		imageUrl  sql.NullString
		createdAt string
	)
	if err := row.Scan(&p.Id, &p.Title, &p.Content, &imageUrl, &createdAt); err != nil {
		return models.Post{}, err
	}
	if imageUrl.Valid {
		url := imageUrl.String
		p.ImageUrl = &url
	}
	t, err := time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		return models.Post{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	p.CreatedAt = t
	return p, nil
}

func scanSubscriber(row rowScanner) (models.Subscriber, error) {
	var (
		sub          models.Subscriber
		subscribedAt string
	)
	if err := row.Scan(&sub.Id, &sub.Email, &subscribedAt); err != nil {
		return models.Subscriber{}, err
	}
	t, err := time.Parse(sqliteTimeLayout, subscribedAt)
	if err != nil {
		return models.Subscriber{}, fmt.Errorf("parse subscribed_at %q: %w", subscribedAt, err)
	}
	sub.SubscribedAt = t
	return sub, nil
}

func (s *SQLiteStorage) AddPost(ctx context.Context, title string, content string, imageUrl *string) (models.Post, error) {
	if err := storage.ValidateNewPost(title, content); err != nil {
		return models.Post{}, err
	}
	createdAt := models.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (title, content, image_url, created_at) VALUES (?, ?, ?, ?)`,
		title, content, nullable(imageUrl), createdAt.Format(sqliteTimeLayout),
	)
	if err != nil {
		return models.Post{}, fmt.Errorf("failed to insert post: %s: %w", err.Error(), storage.InternalError)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Post{}, fmt.Errorf("failed to read post id: %s: %w", err.Error(), storage.InternalError)
	}
	post := models.Post{Id: id, Title: title, Content: content, CreatedAt: createdAt}
	if imageUrl != nil {
		url := *imageUrl
		post.ImageUrl = &url
	}
	return post, nil
}

func (s *SQLiteStorage) GetPosts(ctx context.Context) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, image_url, created_at FROM posts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %s: %w", err.Error(), storage.InternalError)
	}
	defer closeRows(rows)

	posts := make([]models.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("decode error: %s: %w", err.Error(), storage.InternalError)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list posts: %s: %w", err.Error(), storage.InternalError)
	}
	return posts, nil
}

func (s *SQLiteStorage) GetPost(ctx context.Context, id int64) (models.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, image_url, created_at FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Post{}, fmt.Errorf("no post with id %d: %w", id, storage.NotFoundError)
		}
		return models.Post{}, fmt.Errorf("failed to find post: %s: %w", err.Error(), storage.InternalError)
	}
	return p, nil
}

// PatchPost applies the patch in a single UPDATE so that two concurrent
// patches of the same row never interleave.
func (s *SQLiteStorage) PatchPost(ctx context.Context, id int64, patch models.PostPatch) (models.Post, error) {
	if err := storage.ValidatePatch(patch); err != nil {
		return models.Post{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`UPDATE posts SET
			title = COALESCE(?, title),
			content = COALESCE(?, content),
			image_url = CASE WHEN ? THEN NULL ELSE COALESCE(?, image_url) END
		WHERE id = ?
		RETURNING id, title, content, image_url, created_at`,
		nullable(patch.Title), nullable(patch.Content), patch.ClearImage, nullable(patch.ImageUrl), id,
	)
	p, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Post{}, fmt.Errorf("no post with id %d: %w", id, storage.NotFoundError)
		}
		return models.Post{}, fmt.Errorf("failed to update post: %s: %w", err.Error(), storage.InternalError)
	}
	return p, nil
}

func (s *SQLiteStorage) DeletePost(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %s: %w", err.Error(), storage.InternalError)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete post: %s: %w", err.Error(), storage.InternalError)
	}
	if n == 0 {
		return fmt.Errorf("no post with id %d: %w", id, storage.NotFoundError)
	}
	return nil
}

func (s *SQLiteStorage) AddSubscriber(ctx context.Context, email string) (models.Subscriber, error) {
	email, err := storage.NormalizeSubscriberEmail(email)
	if err != nil {
		return models.Subscriber{}, err
	}
	subscribedAt := models.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (email, subscribed_at) VALUES (?, ?)`,
		email, subscribedAt.Format(sqliteTimeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Subscriber{}, fmt.Errorf("email %s already subscribed: %w", email, storage.ConflictError)
		}
		return models.Subscriber{}, fmt.Errorf("failed to insert subscriber: %s: %w", err.Error(), storage.InternalError)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Subscriber{}, fmt.Errorf("failed to read subscriber id: %s: %w", err.Error(), storage.InternalError)
	}
	return models.Subscriber{Id: id, Email: email, SubscribedAt: subscribedAt}, nil
}

func (s *SQLiteStorage) GetSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, subscribed_at FROM subscribers ORDER BY subscribed_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %s: %w", err.Error(), storage.InternalError)
	}
	defer closeRows(rows)

	subscribers := make([]models.Subscriber, 0)
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("decode error: %s: %w", err.Error(), storage.InternalError)
		}
		subscribers = append(subscribers, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %s: %w", err.Error(), storage.InternalError)
	}
	return subscribers, nil
}

func (s *SQLiteStorage) DeleteSubscriber(ctx context.Context, id int64) (models.Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM subscribers WHERE id = ? RETURNING id, email, subscribed_at`, id)
	sub, err := scanSubscriber(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Subscriber{}, fmt.Errorf("no subscriber with id %d: %w", id, storage.NotFoundError)
		}
		return models.Subscriber{}, fmt.Errorf("failed to delete subscriber: %s: %w", err.Error(), storage.InternalError)
	}
	return sub, nil
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		log.WithField("err", err).Warn("Closing rows failed")
	}
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed")
}
