package main

import (
	"io"
	"net/http"
	"newsblog/config"
	"newsblog/handlers"
	"newsblog/mailer"
	"newsblog/objectstore"
	"newsblog/storage"
	"newsblog/storage/in_memory"
	"newsblog/storage/persistent"
	"newsblog/storage/persistent_cached"
	"os"
	"time"

	"github.com/google/gops/agent"
	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	_ "github.com/motemen/go-loghttp/global"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// CreateRouter wires every route. Admin routes compose AdminGuard.
func CreateRouter(cfg config.Config, handler *handlers.HTTPHandler, registry *prometheus.Registry) (*mux.Router, error) {
	metrics, err := handlers.NewMetrics("newsblog", registry)
	if err != nil {
		return nil, err
	}
	admin := handlers.AdminGuard(cfg.AdminToken)
	adminOnly := func(f http.HandlerFunc) http.Handler {
		return admin(f)
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowed)

	r.HandleFunc("/api/health", handler.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/api/posts", handler.HandleGetPosts).Methods(http.MethodGet)
	r.Handle("/api/posts", adminOnly(handler.HandleCreatePost)).Methods(http.MethodPost)
	r.HandleFunc("/api/posts/{postId:[0-9]+}", handler.HandleGetPost).Methods(http.MethodGet)
	r.Handle("/api/posts/{postId:[0-9]+}", adminOnly(handler.HandlePatchPost)).Methods(http.MethodPut)
	r.Handle("/api/posts/{postId:[0-9]+}", adminOnly(handler.HandleDeletePost)).Methods(http.MethodDelete)
	r.Handle("/api/upload", adminOnly(handler.HandleUpload)).Methods(http.MethodPost)
	r.HandleFunc("/api/newsletter/signup", handler.HandleSubscribe).Methods(http.MethodPost)
	r.Handle("/api/newsletter/send", adminOnly(handler.HandleSendNewsletter)).Methods(http.MethodPost)
	r.Handle("/api/newsletter/subscribers", adminOnly(handler.HandleGetSubscribers)).Methods(http.MethodGet)
	r.Handle("/api/newsletter/unsubscribe/{subscriberId:[0-9]+}", adminOnly(handler.HandleUnsubscribe)).Methods(http.MethodDelete)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.Use(metrics.Middleware)
	return r, nil
}

func CreateServer(cfg config.Config, handler *handlers.HTTPHandler, registry *prometheus.Registry) (*http.Server, error) {
	r, err := CreateRouter(cfg, handler, registry)
	if err != nil {
		return nil, err
	}
	// CORS wraps the whole router so that preflights and 404/405 answers
	// carry the allowed origin too.
	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins([]string{cfg.CorsOrigin}),
		gorillahandlers.AllowedMethods([]string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorillahandlers.OptionStatusCode(http.StatusOK),
	)
	recovery := gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(log.StandardLogger()),
		gorillahandlers.PrintRecoveryStack(true),
	)
	return &http.Server{
		Handler:     recovery(handlers.RequestLogger(cors(r))),
		Addr:        "0.0.0.0:" + cfg.Port,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: a broadcast holds the connection open until every
		// subscriber has been mailed.
	}, nil
}

// CreateStorage picks the backend named by STORAGE_MODE. The returned closers
// release connections on shutdown.
func CreateStorage(cfg config.Config) (storage.Storage, []io.Closer, error) {
	switch cfg.StorageMode {
	case config.InMemory:
		return in_memory.CreateInMemoryStorage(), nil, nil
	case config.SQLite:
		s, err := persistent.CreateSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		return s, []io.Closer{s}, nil
	case config.Mongo:
		s, err := persistent.CreateMongoStorage(cfg.MongoUrl, cfg.MongoDbName)
		if err != nil {
			return nil, nil, err
		}
		return s, []io.Closer{s}, nil
	default:
		backendCfg := cfg
		backendCfg.StorageMode = cfg.CacheBackend
		persistentStorage, closers, err := CreateStorage(backendCfg)
		if err != nil {
			return nil, nil, err
		}
		cached := persistent_cached.CreatePersistentStorageCachedWithRedis(persistentStorage, cfg.RedisUrl)
		if c, ok := cached.(io.Closer); ok {
			closers = append(closers, c)
		}
		return cached, closers, nil
	}
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	cfg, err := config.Load()
	if err != nil {
		log.WithField("err", err).Fatal("Could not load configuration")
	}
	log.SetLevel(cfg.LogLevel)

	if cfg.Gops {
		if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
			log.WithField("err", err).Warn("Could not start gops agent")
		} else {
			defer agent.Close()
		}
	}

	store, closers, err := CreateStorage(cfg)
	if err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"mode": cfg.StorageMode,
		}).Fatal("Could not create storage")
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.WithField("err", err).Warn("Could not close storage")
			}
		}
	}()

	uploader, err := objectstore.NewS3(cfg.S3, cfg.MaxUploadBytes)
	if err != nil {
		log.WithField("err", err).Fatal("Could not create object storage client")
	}
	if cfg.S3.Bucket == "" {
		log.Warn("'S3_BUCKET_NAME' not specified, uploads will fail")
	}
	if cfg.AdminToken == "" {
		log.Warn("'ADMIN_TOKEN' not specified, admin routes will reject every request")
	}

	handler := &handlers.HTTPHandler{
		Storage:        store,
		Uploader:       uploader,
		Mailer:         mailer.NewSMTP(cfg.SMTP),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	srv, err := CreateServer(cfg, handler, prometheus.NewRegistry())
	if err != nil {
		log.WithField("err", err).Fatal("Could not create server")
	}

	log.WithFields(log.Fields{
		"addr":    srv.Addr,
		"storage": cfg.StorageMode,
	}).Info("Start serving")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithField("err", err).Error("Could not listen and serve")
		os.Exit(1)
	}
}
