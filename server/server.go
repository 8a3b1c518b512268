package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"noddymix/cache"
	"noddymix/config"
	"noddymix/core/activity"
	"noddymix/core/playlist"
	"noddymix/core/ranking"
	"noddymix/core/relationship"
	"noddymix/core/session"
	"noddymix/db"
	"noddymix/logger"
	"noddymix/metrics"
	"noddymix/model"
	"noddymix/repository"
	"noddymix/storage"

	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database schema", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database with GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.Activity{}); err != nil {
		logger.Fatal("Failed to migrate activity model", logger.ErrorField(err))
	}

	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer cache.CloseRedis()

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}

	userRepo := repository.NewMySQLUserRepository(db.DB)
	playlistRepo := repository.NewMySQLPlaylistRepository(db.DB)
	songRepo := repository.NewMySQLSongRepository(db.DB)
	followingRepo := repository.NewMySQLFollowingRepository(db.DB)
	activityRepo := repository.NewGormActivityRepository(db.GormDB)

	publisher := activity.NewPublisher(activityRepo, userRepo, songRepo, playlistRepo,
		followingRepo, cache.RedisClient, cfg.ActivityChannel, cfg.ActivityLimit)

	playlistSvc := playlist.NewService(playlistRepo, userRepo, songRepo, publisher, cfg.SongsPerPage)
	relationshipSvc := relationship.NewService(followingRepo, userRepo, playlistRepo, publisher, publisher)
	rankingEngine := ranking.NewEngine(songRepo, publisher, cfg.SongRankGravity,
		time.Duration(cfg.HeavyRotationDays)*24*time.Hour)

	sessionStore := cache.NewSessionStore(cache.RedisClient, time.Duration(cfg.SessionTTLHours)*time.Hour)
	sessions := session.NewManager(sessionStore, songRepo, cfg.SongsPerPage, cfg.SongsPerPage)

	apiHandler := NewAPIHandler(playlistSvc, relationshipSvc, rankingEngine, sessions,
		publisher, userRepo, songRepo, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Spool watcher pushes dropped audio/art files into the asset store.
	assetStore := storage.NewAssetStore(storage.GetMinioClient(), cfg.MinioBucket)
	spoolWatcher := storage.NewSpoolWatcher(assetStore, cfg.SpoolDir)
	go func() {
		if err := spoolWatcher.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("Spool watcher stopped", logger.ErrorField(err))
		}
	}()

	// Live feed fanout over websockets.
	feedHub := NewFeedHub()
	go feedHub.Run()
	go feedHub.Subscribe(ctx, cache.RedisClient, cfg.ActivityChannel)
	defer feedHub.Stop()

	// Periodic rank rebuild; the serve loop keeps heavy rotation fresh
	// without waiting for the maintenance command.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := rankingEngine.Rebuild(ctx); err != nil {
					logger.Error("Scheduled rank rebuild failed", logger.ErrorField(err))
				}
			}
		}
	}()

	router := mux.NewRouter()

	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// Users and the follow graph
	router.HandleFunc("/api/users/{id}", apiHandler.GetUserHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/users/{id}/playlists", apiHandler.UserPlaylistsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/users/{id}/activity", apiHandler.UserActivityHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/users/{id}/follow", apiHandler.FollowHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/users/{id}/follow", apiHandler.UnfollowHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/users/{id}/follow", apiHandler.IsFollowingHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/account", apiHandler.DeleteUserHandler).Methods(http.MethodDelete)

	// Activity feed
	router.HandleFunc("/api/feed", apiHandler.FeedHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/feed/live", apiHandler.FeedSocketHandler(feedHub, followingRepo)).Methods(http.MethodGet)

	// Persisted playlists
	router.HandleFunc("/api/playlists", apiHandler.CreatePlaylistHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}", apiHandler.GetPlaylistHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists/{id}", apiHandler.RenamePlaylistHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/playlists/{id}", apiHandler.DeletePlaylistHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/songs", apiHandler.PlaylistSongsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists/{id}/songs", apiHandler.AddSongsHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}/songs", apiHandler.RemoveSongsHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/order", apiHandler.ReorderSongsHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/playlists/{id}/subscription", apiHandler.SubscribeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}/subscription", apiHandler.UnsubscribeHandler).Methods(http.MethodDelete)

	// Session-backed temp playlists for anonymous visitors
	router.HandleFunc("/api/temp/playlists", apiHandler.TempPlaylistsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/temp/playlists", apiHandler.CreateTempPlaylistHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/temp/playlists/{id}", apiHandler.GetTempPlaylistHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/temp/playlists/{id}", apiHandler.RenameTempPlaylistHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/temp/playlists/{id}", apiHandler.DeleteTempPlaylistHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/temp/playlists/{id}/songs", apiHandler.TempPlaylistSongsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/temp/playlists/{id}/songs", apiHandler.AddTempSongsHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/temp/playlists/{id}/songs", apiHandler.RemoveTempSongsHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/temp/playlists/{id}/order", apiHandler.ReorderTempSongsHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/history", apiHandler.HistoryHandler).Methods(http.MethodGet)

	// Songs and discovery
	router.HandleFunc("/api/songs/heavy-rotation", apiHandler.HeavyRotationHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/new-releases", apiHandler.NewReleasesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}", apiHandler.SongHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}/play", apiHandler.PlaySongHandler).Methods(http.MethodPost)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Media served straight out of the asset store.
	router.PathPrefix("/media/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		objectPath := strings.TrimPrefix(r.URL.Path, "/media/")
		client := storage.GetMinioClient()
		if client == nil {
			http.Error(w, "asset store not available", http.StatusInternalServerError)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		object, err := client.GetObject(ctx, cfg.MinioBucket, objectPath, minio.GetObjectOptions{})
		if err != nil {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		defer object.Close()

		contentType := "application/octet-stream"
		if strings.HasPrefix(objectPath, "art/") {
			contentType = "image/jpeg"
		} else if strings.HasPrefix(objectPath, "audio/") {
			contentType = "audio/mpeg"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000")

		if _, err := io.Copy(w, object); err != nil {
			logger.Warn("Error serving media object",
				logger.String("object", objectPath), logger.ErrorField(err))
		}
	})

	server.Handler = router

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}
	logger.Info("Server stopped")
}
