package server

import (
	"context"
	"errors"
)

// Authentication and document access are external collaborators; the
// session layer consumes them through these interfaces only. The static
// implementations below back development runs and tests.

var (
	ErrNoIdentity       = errors.New("no identity resolved")
	ErrInvalidToken     = errors.New("invalid token")
	ErrDocumentNotFound = errors.New("document not found")
	ErrAccessDenied     = errors.New("access denied")
)

// Identity is a resolved participant identity.
type Identity struct {
	UserID   string
	Username string
}

// Authenticator resolves an identity from a connection token.
type Authenticator interface {
	// Authenticate returns ErrNoIdentity for an empty token and
	// ErrInvalidToken for one that does not resolve.
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// AccessController decides whether a user may join a document session.
type AccessController interface {
	// Authorize returns ErrDocumentNotFound or ErrAccessDenied when the
	// user may not join.
	Authorize(ctx context.Context, documentID, userID string) error
}

// StaticAuthenticator resolves identities from a fixed token table.
type StaticAuthenticator map[string]Identity

func (a StaticAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoIdentity
	}
	identity, ok := a[token]
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return identity, nil
}

// DocumentACL describes who may join one document.
type DocumentACL struct {
	Owner         string
	Public        bool
	Collaborators []string
}

// StaticAccessController authorizes against a fixed document table. A user
// may join when they own the document, the document is public, or they
// appear in its collaborator list.
type StaticAccessController struct {
	Documents map[string]DocumentACL

	// AllowUnknown admits any user to documents absent from the table.
	// Used for open development runs.
	AllowUnknown bool
}

func (c StaticAccessController) Authorize(_ context.Context, documentID, userID string) error {
	acl, ok := c.Documents[documentID]
	if !ok {
		if c.AllowUnknown {
			return nil
		}
		return ErrDocumentNotFound
	}

	if acl.Public || acl.Owner == userID {
		return nil
	}
	for _, collaborator := range acl.Collaborators {
		if collaborator == userID {
			return nil
		}
	}
	return ErrAccessDenied
}
