package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/apperr"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/auth"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/blocks"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/config"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/content"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/httputil"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/room"
)

// Handlers contains all HTTP and WebSocket handlers
type Handlers struct {
	registry   *room.RoomRegistry
	content    *content.Service
	authorizer auth.Authorizer
	presence   *config.Presence
	logger     *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(registry *room.RoomRegistry, svc *content.Service, authorizer auth.Authorizer, presence *config.Presence, logger *slog.Logger) *Handlers {
	return &Handlers{
		registry:   registry,
		content:    svc,
		authorizer: authorizer,
		presence:   presence,
		logger:     logger,
	}
}

// Health reports liveness and the number of open rooms
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"rooms":  h.registry.RoomCount(),
	})
}

// GetContent returns the current content of a page
func (h *Handlers) GetContent(w http.ResponseWriter, r *http.Request) {
	pageID := mux.Vars(r)["pageId"]

	pc, err := h.content.Load(r.Context(), pageID)
	if err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, pc)
}

// SaveContent merges the submitted blocks into the stored page content
func (h *Handlers) SaveContent(w http.ResponseWriter, r *http.Request) {
	pageID := mux.Vars(r)["pageId"]

	var req content.SaveRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}

	result, err := h.content.Save(r.Context(), pageID, req, userID(r))
	if err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

// ForceSave overwrites the stored page content with the submitted blocks
func (h *Handlers) ForceSave(w http.ResponseWriter, r *http.Request) {
	pageID := mux.Vars(r)["pageId"]

	var req struct {
		Blocks []blocks.Block `json:"blocks"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}

	pc, err := h.content.ForceSave(r.Context(), pageID, req.Blocks, userID(r))
	if err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, pc)
}

// AcceptServer returns the server version so the client can drop its own
func (h *Handlers) AcceptServer(w http.ResponseWriter, r *http.Request) {
	pageID := mux.Vars(r)["pageId"]

	pc, err := h.content.AcceptServer(r.Context(), pageID)
	if err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, pc)
}

// DeleteContent removes a page's content and history
func (h *Handlers) DeleteContent(w http.ResponseWriter, r *http.Request) {
	pageID := mux.Vars(r)["pageId"]

	existed, err := h.content.Delete(r.Context(), pageID)
	if err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}
	if !existed {
		httputil.RespondError(w, http.StatusNotFound, fmt.Sprintf("page %s has no content", pageID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHistory lists archived versions of a page, newest first
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	pageID := mux.Vars(r)["pageId"]

	entries, err := h.content.History(r.Context(), pageID)
	if err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, entries)
}

// RestoreVersion makes an archived version the current one
func (h *Handlers) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pageID := vars["pageId"]

	version, err := strconv.Atoi(vars["version"])
	if err != nil || version < 1 {
		httputil.HandleError(w, apperr.NewValidationError(errors.New("version must be a positive integer")), h.logger)
		return
	}

	pc, err := h.content.Restore(r.Context(), pageID, version, userID(r))
	if err != nil {
		httputil.HandleError(w, err, h.logger)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, pc)
}

// GetPageUsers returns the presence of every connection viewing a page
func (h *Handlers) GetPageUsers(w http.ResponseWriter, r *http.Request) {
	pageID := mux.Vars(r)["pageId"]

	httputil.RespondJSON(w, http.StatusOK, room.CurrentUsersPayload{
		PageID: pageID,
		Users:  h.registry.Users(pageID),
	})
}

func userID(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return id.UserID
	}
	return ""
}
