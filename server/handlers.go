package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"noddymix/cache"
	"noddymix/config"
	"noddymix/core/activity"
	"noddymix/core/playlist"
	"noddymix/core/ranking"
	"noddymix/core/relationship"
	"noddymix/core/session"
	"noddymix/logger"
	"noddymix/repository"

	"github.com/gorilla/mux"
)

// sessionCookie names the cookie carrying the anonymous session ID.
const sessionCookie = "noddymix_session"

// userIDHeader carries the authenticated user's ID, set by the fronting
// auth proxy. Absent means anonymous.
const userIDHeader = "X-User-ID"

// APIHandler handles all API requests.
type APIHandler struct {
	playlistSvc     *playlist.Service
	relationshipSvc *relationship.Service
	rankingEngine   *ranking.Engine
	sessions        *session.Manager
	publisher       *activity.Publisher
	userRepo        repository.UserRepository
	songRepo        repository.SongRepository
	cfg             *config.Config
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(
	playlistSvc *playlist.Service,
	relationshipSvc *relationship.Service,
	rankingEngine *ranking.Engine,
	sessions *session.Manager,
	publisher *activity.Publisher,
	userRepo repository.UserRepository,
	songRepo repository.SongRepository,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		playlistSvc:     playlistSvc,
		relationshipSvc: relationshipSvc,
		rankingEngine:   rankingEngine,
		sessions:        sessions,
		publisher:       publisher,
		userRepo:        userRepo,
		songRepo:        songRepo,
		cfg:             cfg,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("Failed to encode response", logger.ErrorField(err))
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// actingUserID reads the authenticated user's ID from the trusted header.
// Zero means anonymous.
func actingUserID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get(userIDHeader), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// requireUser is actingUserID for endpoints that don't serve anonymous
// visitors.
func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id := actingUserID(r)
	if id == 0 {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return 0, false
	}
	return id, true
}

// sessionID reads the visitor's session cookie, minting one if needed.
func (h *APIHandler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := cache.NewSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   h.cfg.SessionTTLHours * 3600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// GetUserHandler returns a user's public profile.
func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := h.userRepo.GetUserByID(id)
	if err != nil {
		logger.Error("Failed to load user", logger.Int64("userID", id), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// DeleteUserHandler deletes the acting user's own account.
func (h *APIHandler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.relationshipSvc.DeleteUser(r.Context(), userID); err != nil {
		if err == relationship.ErrUserNotFound {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		logger.Error("Failed to delete user", logger.Int64("userID", userID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// FeedHandler returns the acting user's activity feed.
func (h *APIHandler) FeedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	items, err := h.publisher.Feed(r.Context(), userID, h.cfg.ActivityLimit)
	if err != nil {
		logger.Error("Failed to build feed", logger.Int64("userID", userID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to build feed")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// UserActivityHandler returns one user's own activity history, honoring
// their privacy setting for other viewers.
func (h *APIHandler) UserActivityHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := h.userRepo.GetUserByID(id)
	if err != nil {
		logger.Error("Failed to load user", logger.Int64("userID", id), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if !user.ActivityPublic && actingUserID(r) != id {
		respondError(w, http.StatusForbidden, "activity is private")
		return
	}
	items, err := h.publisher.ProfileFeed(r.Context(), id, h.cfg.ActivityLimit)
	if err != nil {
		logger.Error("Failed to load activity", logger.Int64("userID", id), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to load activity")
		return
	}
	respondJSON(w, http.StatusOK, items)
}
