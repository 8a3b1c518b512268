package server

import (
	"encoding/json"
	"net/http"

	"noddymix/core/playlist"
	"noddymix/logger"
)

type playlistRequest struct {
	Title    string  `json:"title"`
	IsPublic *bool   `json:"isPublic"`
	SongIDs  []int64 `json:"songIds"`
	Page     int     `json:"page"`
}

func playlistError(w http.ResponseWriter, err error) {
	switch err {
	case playlist.ErrNotFound:
		respondError(w, http.StatusNotFound, "playlist not found")
	case playlist.ErrNotOwner:
		respondError(w, http.StatusForbidden, "not the playlist owner")
	default:
		logger.Error("Playlist operation failed", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "playlist operation failed")
	}
}

// CreatePlaylistHandler creates a playlist for the acting user.
func (h *APIHandler) CreatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}
	p, err := h.playlistSvc.CreatePlaylist(r.Context(), userID, req.Title, isPublic)
	if err != nil {
		playlistError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// GetPlaylistHandler returns one playlist.
func (h *APIHandler) GetPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist id")
		return
	}
	p, err := h.playlistSvc.GetPlaylist(r.Context(), id)
	if err != nil {
		playlistError(w, err)
		return
	}
	if !p.IsPublic && p.OwnerID != actingUserID(r) {
		respondError(w, http.StatusNotFound, "playlist not found")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// UserPlaylistsHandler lists a user's playlists, one page at a time.
func (h *APIHandler) UserPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	playlists, err := h.playlistSvc.PlaylistsByOwner(r.Context(), ownerID, pageParam(r), h.cfg.PlaylistsPerPage)
	if err != nil {
		playlistError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, playlists)
}

// RenamePlaylistHandler retitles an owned playlist.
func (h *APIHandler) RenamePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
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
	p, err := h.playlistSvc.RenamePlaylist(r.Context(), userID, id, req.Title)
	if err != nil {
		playlistError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// DeletePlaylistHandler removes an owned playlist.
func (h *APIHandler) DeletePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist id")
		return
	}
	if err := h.playlistSvc.DeletePlaylist(r.Context(), userID, id); err != nil {
		playlistError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// PlaylistSongsHandler returns one page of a playlist's songs in order.
func (h *APIHandler) PlaylistSongsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist id")
		return
	}
	p, err := h.playlistSvc.GetPlaylist(r.Context(), id)
	if err != nil {
		playlistError(w, err)
		return
	}
	if !p.IsPublic && p.OwnerID != actingUserID(r) {
		respondError(w, http.StatusNotFound, "playlist not found")
		return
	}
	songs, err := h.playlistSvc.OrderedSongs(r.Context(), id, pageParam(r))
	if err != nil {
		playlistError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, songs)
}

// AddSongsHandler appends songs to an owned playlist.
func (h *APIHandler) AddSongsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
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
	p, err := h.playlistSvc.AddSongs(r.Context(), userID, id, req.SongIDs)
	if err != nil {
		playlistError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// RemoveSongsHandler removes songs from an owned playlist.
func (h *APIHandler) RemoveSongsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
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
	p, err := h.playlistSvc.RemoveSongs(r.Context(), userID, id, req.SongIDs)
	if err != nil {
		playlistError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ReorderSongsHandler applies a new order to one page of an owned
// playlist. The body carries the page and that page's song IDs in their
// desired order.
func (h *APIHandler) ReorderSongsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
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
	p, err := h.playlistSvc.Reorder(r.Context(), userID, id, req.Page, req.SongIDs)
	if err != nil {
		playlistError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// SubscribeHandler subscribes the acting user to a playlist.
func (h *APIHandler) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist id")
		return
	}
	p, err := h.playlistSvc.Subscribe(r.Context(), userID, id)
	if err != nil {
		playlistError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// UnsubscribeHandler removes the acting user's subscription.
func (h *APIHandler) UnsubscribeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist id")
		return
	}
	p, err := h.playlistSvc.Unsubscribe(r.Context(), userID, id)
	if err != nil {
		playlistError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
