package server

import (
	"net/http"
	"strconv"
	"time"

	"noddymix/core/ranking"
	"noddymix/core/relationship"
	"noddymix/logger"
)

// SongHandler returns one song.
func (h *APIHandler) SongHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid song id")
		return
	}
	song, err := h.songRepo.GetSongByID(id)
	if err != nil {
		logger.Error("Failed to load song", logger.Int64("songID", id), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to load song")
		return
	}
	if song == nil {
		respondError(w, http.StatusNotFound, "song not found")
		return
	}
	respondJSON(w, http.StatusOK, song)
}

// PlaySongHandler records a play of a song: the play log, the lifetime
// counter and the session history all move. Works for anonymous visitors.
func (h *APIHandler) PlaySongHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid song id")
		return
	}

	if err := h.rankingEngine.LogPlay(r.Context(), actingUserID(r), id); err != nil {
		if err == ranking.ErrSongNotFound {
			respondError(w, http.StatusNotFound, "song not found")
			return
		}
		logger.Error("Failed to log play", logger.Int64("songID", id), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to log play")
		return
	}

	if err := h.sessions.RecordHistory(r.Context(), h.sessionID(w, r), id); err != nil {
		// History is cosmetic; the play itself already landed.
		logger.Warn("Failed to record session history",
			logger.Int64("songID", id), logger.ErrorField(err))
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// HeavyRotationHandler returns the songs everyone is playing right now,
// best first.
func (h *APIHandler) HeavyRotationHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 || limit > h.cfg.SongsPerPage {
		limit = h.cfg.SongsPerPage
	}
	ranked, err := h.rankingEngine.HeavyRotation(r.Context(), limit)
	if err != nil {
		logger.Error("Failed to load heavy rotation", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to load heavy rotation")
		return
	}
	respondJSON(w, http.StatusOK, ranked)
}

// NewReleasesHandler returns songs added within the heavy rotation
// window, newest first.
func (h *APIHandler) NewReleasesHandler(w http.ResponseWriter, r *http.Request) {
	since := time.Now().AddDate(0, 0, -h.cfg.HeavyRotationDays)
	songs, err := h.songRepo.NewReleases(since, h.cfg.SongsPerPage)
	if err != nil {
		logger.Error("Failed to load new releases", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to load new releases")
		return
	}
	respondJSON(w, http.StatusOK, songs)
}

// FollowHandler makes the acting user follow another user.
func (h *APIHandler) FollowHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.relationshipSvc.Follow(r.Context(), userID, id); err != nil {
		if err == relationship.ErrUserNotFound {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		logger.Error("Failed to follow", logger.Int64("userID", userID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to follow")
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// UnfollowHandler removes a follow.
func (h *APIHandler) UnfollowHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.relationshipSvc.Unfollow(r.Context(), userID, id); err != nil {
		logger.Error("Failed to unfollow", logger.Int64("userID", userID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to unfollow")
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// IsFollowingHandler reports whether the acting user follows another.
func (h *APIHandler) IsFollowingHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	following, err := h.relationshipSvc.IsFollowing(r.Context(), actingUserID(r), id)
	if err != nil {
		logger.Error("Failed to check follow state", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to check follow state")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"following": following})
}
