package server

import (
	"encoding/json"
	"net/http"

	"noddymix/core/session"
	"noddymix/logger"
)

// Temp playlist endpoints mirror the persisted playlist API for visitors
// with no account. State lives in the session; IDs are session-local.

func sessionError(w http.ResponseWriter, err error) {
	if err == session.ErrPlaylistNotFound {
		respondError(w, http.StatusNotFound, "playlist not found")
		return
	}
	logger.Error("Session operation failed", logger.ErrorField(err))
	respondError(w, http.StatusInternalServerError, "session operation failed")
}

// TempPlaylistsHandler lists the session's playlists.
func (h *APIHandler) TempPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.sessions.Playlists(r.Context(), h.sessionID(w, r))
	if err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, playlists)
}

// CreateTempPlaylistHandler creates an ephemeral playlist in the session.
func (h *APIHandler) CreateTempPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.sessions.CreatePlaylist(r.Context(), h.sessionID(w, r), req.Title)
	if err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// GetTempPlaylistHandler returns one ephemeral playlist.
func (h *APIHandler) GetTempPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist id")
		return
	}
	p, err := h.sessions.GetPlaylist(r.Context(), h.sessionID(w, r), id)
	if err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// RenameTempPlaylistHandler retitles an ephemeral playlist.
func (h *APIHandler) RenameTempPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist id")
		return
	}
	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.sessions.RenamePlaylist(r.Context(), h.sessionID(w, r), id, req.Title)
	if err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// DeleteTempPlaylistHandler removes an ephemeral playlist.
func (h *APIHandler) DeleteTempPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist id")
		return
	}
	if err := h.sessions.DeletePlaylist(r.Context(), h.sessionID(w, r), id); err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// TempPlaylistSongsHandler returns one page of an ephemeral playlist.
func (h *APIHandler) TempPlaylistSongsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist id")
		return
	}
	songs, err := h.sessions.OrderedSongs(r.Context(), h.sessionID(w, r), id, pageParam(r))
	if err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, songs)
}

// AddTempSongsHandler appends songs to an ephemeral playlist.
func (h *APIHandler) AddTempSongsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist id")
		return
	}
	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.sessions.AddSongs(r.Context(), h.sessionID(w, r), id, req.SongIDs)
	if err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// RemoveTempSongsHandler removes songs from an ephemeral playlist.
func (h *APIHandler) RemoveTempSongsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist id")
		return
	}
	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.sessions.RemoveSongs(r.Context(), h.sessionID(w, r), id, req.SongIDs)
	if err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ReorderTempSongsHandler applies a new order to one page of an ephemeral
// playlist.
func (h *APIHandler) ReorderTempSongsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist id")
		return
	}
	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.sessions.ReorderSongs(r.Context(), h.sessionID(w, r), id, req.Page, req.SongIDs)
	if err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// HistoryHandler returns the session's recent listening history.
func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	songs, err := h.sessions.RecentHistory(r.Context(), h.sessionID(w, r))
	if err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, songs)
}
