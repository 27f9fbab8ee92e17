package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Register mounts the websocket endpoint and the page content API on r.
func (h *Handlers) Register(r *mux.Router) {
	// WebSocket endpoint for presence and live edits
	r.HandleFunc("/ws", h.HandleWebSocket)

	api := r.PathPrefix("/api/pages/{pageId}").Subrouter()
	api.Use(h.requirePageAccess)
	api.HandleFunc("/content", h.GetContent).Methods(http.MethodGet)
	api.HandleFunc("/content", h.SaveContent).Methods(http.MethodPut)
	api.HandleFunc("/content", h.DeleteContent).Methods(http.MethodDelete)
	api.HandleFunc("/content/force", h.ForceSave).Methods(http.MethodPost)
	api.HandleFunc("/content/accept-server", h.AcceptServer).Methods(http.MethodPost)
	api.HandleFunc("/history", h.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{version}/restore", h.RestoreVersion).Methods(http.MethodPost)
	api.HandleFunc("/users", h.GetPageUsers).Methods(http.MethodGet)
}
