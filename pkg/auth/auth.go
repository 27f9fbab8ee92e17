// Package auth verifies bearer tokens and decides who may join a page.
package auth

import (
	"context"
	"slices"
)

// Identity is the authenticated user behind a request or connection
type Identity struct {
	UserID     string   `json:"userId"`
	Email      string   `json:"email,omitempty"`
	Name       string   `json:"name,omitempty"`
	Workspaces []string `json:"workspaces,omitempty"`
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	// VerifyToken returns an error matching apperr.ErrUnauthorized for any
	// invalid, expired or unsigned token.
	VerifyToken(token string) (*Identity, error)
	Close() error
}

// Authorizer is the membership gate consulted before a connection joins a
// page. The room layer trusts its answer.
type Authorizer interface {
	CanJoin(ctx context.Context, id Identity, pageID, workspaceID string) (bool, error)
}

// AllWorkspaces in a token's workspaces claim grants access everywhere
const AllWorkspaces = "*"

// ClaimsAuthorizer grants access to pages of the workspaces listed in the
// identity's token claims. An empty workspace id is denied unless the
// identity holds AllWorkspaces.
type ClaimsAuthorizer struct{}

func (ClaimsAuthorizer) CanJoin(_ context.Context, id Identity, pageID, workspaceID string) (bool, error) {
	if id.UserID == "" || pageID == "" {
		return false, nil
	}
	if slices.Contains(id.Workspaces, AllWorkspaces) {
		return true, nil
	}
	// a page outside any named workspace is only open to wildcard identities
	return workspaceID != "" && slices.Contains(id.Workspaces, workspaceID), nil
}

// AllowAll admits every identified user. Development only.
type AllowAll struct{}

func (AllowAll) CanJoin(_ context.Context, id Identity, _, _ string) (bool, error) {
	return id.UserID != "", nil
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity stores the identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
