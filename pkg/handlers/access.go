package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/auth"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/httputil"
)

// WorkspaceHeader names the workspace a page request acts in. The
// workspaceId query parameter is accepted as well.
const WorkspaceHeader = "X-Workspace-ID"

// requirePageAccess asks the authorizer whether the caller may read or edit
// the page named in the route before any page handler runs.
func (h *Handlers) requirePageAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok {
			httputil.RespondError(w, http.StatusUnauthorized, "missing identity")
			return
		}

		pageID := mux.Vars(r)["pageId"]
		workspaceID := r.Header.Get(WorkspaceHeader)
		if workspaceID == "" {
			workspaceID = r.URL.Query().Get("workspaceId")
		}

		allowed, err := h.authorizer.CanJoin(r.Context(), id, pageID, workspaceID)
		if err != nil {
			httputil.HandleError(w, fmt.Errorf("authorize page %s: %w", pageID, err), h.logger)
			return
		}
		if !allowed {
			h.logger.Info("page access denied", "page_id", pageID, "workspace_id", workspaceID, "user_id", id.UserID, "method", r.Method)
			httputil.RespondError(w, http.StatusForbidden, fmt.Sprintf("not allowed to access page %s", pageID))
			return
		}

		next.ServeHTTP(w, r)
	})
}
