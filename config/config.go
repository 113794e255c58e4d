// Package config builds the process configuration once at startup from the
// environment and an optional .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type StorageMode string

const (
	InMemory       StorageMode = "inmemory"
	SQLite         StorageMode = "sqlite"
	Mongo          StorageMode = "mongo"
	MongoWithCache StorageMode = "cached"
)

const DefaultMaxUploadBytes = 16 * 1024 * 1024

type Config struct {
	Port     string
	LogLevel log.Level
	Gops     bool

	StorageMode  StorageMode
	CacheBackend StorageMode
	DatabasePath string
	MongoUrl     string
	MongoDbName  string
	RedisUrl     string

	// SecretKey is reserved for signing; no component uses it yet.
	SecretKey  string
	AdminToken string
	CorsOrigin string

	S3 S3Config

	MaxUploadBytes int64

	SMTP SMTPConfig
}

type S3Config struct {
	AccessKeyId     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Endpoint        string
	PublicUrl       string
}

type SMTPConfig struct {
	Server   string
	Port     int
	Sender   string
	Password string
}

func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server, c.Port)
}

var defaults = map[string]interface{}{
	"SERVER_PORT":      "8080",
	"LOG_LEVEL":        "info",
	"GOPS":             false,
	"STORAGE_MODE":     string(SQLite),
	"CACHE_BACKEND":    string(SQLite),
	"DATABASE_PATH":    "blog.db",
	"SECRET_KEY":       "dev-secret-key",
	"CORS_ORIGIN":      "http://localhost:5173",
	"AWS_REGION":       "us-east-1",
	"MAX_UPLOAD_BYTES": DefaultMaxUploadBytes,
	"SMTP_PORT":        587,
}

// Load reads configuration from the environment, falling back to a .env file
// in the working directory when one is present.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read .env: %w", err)
			}
		}
	}
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds and validates a Config from an already populated viper
// instance.
func FromViper(v *viper.Viper) (Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	level, err := log.ParseLevel(v.GetString("LOG_LEVEL"))
	if err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg := Config{
		Port:           v.GetString("SERVER_PORT"),
		LogLevel:       level,
		Gops:           v.GetBool("GOPS"),
		StorageMode:    StorageMode(strings.ToLower(v.GetString("STORAGE_MODE"))),
		CacheBackend:   StorageMode(strings.ToLower(v.GetString("CACHE_BACKEND"))),
		DatabasePath:   v.GetString("DATABASE_PATH"),
		MongoUrl:       v.GetString("MONGO_URL"),
		MongoDbName:    v.GetString("MONGO_DBNAME"),
		RedisUrl:       v.GetString("REDIS_URL"),
		SecretKey:      v.GetString("SECRET_KEY"),
		AdminToken:     v.GetString("ADMIN_TOKEN"),
		CorsOrigin:     v.GetString("CORS_ORIGIN"),
		MaxUploadBytes: v.GetInt64("MAX_UPLOAD_BYTES"),
		S3: S3Config{
			AccessKeyId:     v.GetString("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
			Region:          v.GetString("AWS_REGION"),
			Bucket:          v.GetString("S3_BUCKET_NAME"),
			Endpoint:        v.GetString("S3_ENDPOINT"),
			PublicUrl:       strings.TrimRight(v.GetString("S3_PUBLIC_URL"), "/"),
		},
		SMTP: SMTPConfig{
			Server:   v.GetString("SMTP_SERVER"),
			Port:     v.GetInt("SMTP_PORT"),
			Sender:   v.GetString("SENDER_EMAIL"),
			Password: v.GetString("SENDER_PASSWORD"),
		},
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	switch c.StorageMode {
	case InMemory:
	case SQLite:
		if c.DatabasePath == "" {
			return errors.New("'DATABASE_PATH' not specified")
		}
	case Mongo:
		return c.requireMongo()
	case MongoWithCache:
		if c.RedisUrl == "" {
			return errors.New("'REDIS_URL' was not specified for 'cached' STORAGE_MODE")
		}
		switch c.CacheBackend {
		case SQLite:
			if c.DatabasePath == "" {
				return errors.New("'DATABASE_PATH' not specified")
			}
		case Mongo:
			return c.requireMongo()
		default:
			return fmt.Errorf("invalid 'CACHE_BACKEND' %q", c.CacheBackend)
		}
	default:
		return fmt.Errorf("invalid 'STORAGE_MODE' %q", c.StorageMode)
	}
	return nil
}

func (c Config) requireMongo() error {
	if c.MongoUrl == "" {
		return errors.New("'MONGO_URL' not specified")
	}
	if c.MongoDbName == "" {
		return errors.New("'MONGO_DBNAME' not specified")
	}
	return nil
}
