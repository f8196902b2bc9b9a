// Package upstream defines the port interface for the remote source-control
// hosting API the relay fronts.
package upstream

import (
	"context"
	"encoding/json"
)

// IssuePatch carries the fields of an issue update. Empty fields are
// omitted from the upstream payload.
type IssuePatch struct {
	Title string
	Body  string
	State string
}

// Client is the port interface for the upstream hosting API. Each method is a
// single synchronous call; results are the upstream's JSON, undecoded beyond
// transport framing. Failures are classified: *StatusError for a remote
// rejection, an ErrUnreachable-wrapped error for transport trouble.
type Client interface {
	// GetAuthenticatedUser returns the user the configured token belongs to.
	GetAuthenticatedUser(ctx context.Context) (json.RawMessage, error)

	// GetUser returns the profile of the named user.
	GetUser(ctx context.Context, username string) (json.RawMessage, error)

	// ListOwnRepos lists repositories of the authenticated user, one page.
	ListOwnRepos(ctx context.Context, perPage int) (json.RawMessage, error)

	GetRepo(ctx context.Context, owner, repo string) (json.RawMessage, error)
	CreateRepo(ctx context.Context, name, description string, private bool) (json.RawMessage, error)
	DeleteRepo(ctx context.Context, owner, repo string) (json.RawMessage, error)
	ForkRepo(ctx context.Context, owner, repo string) (json.RawMessage, error)

	// GetFileContent fetches file metadata and content at the given ref.
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (json.RawMessage, error)

	// CreateFile adds a new file on the given branch. The content is raw
	// text; the client applies the transport encoding the upstream expects.
	CreateFile(ctx context.Context, owner, repo, path, content, message, branch string) (json.RawMessage, error)

	// UpdateFile replaces an existing file identified by its blob SHA.
	UpdateFile(ctx context.Context, owner, repo, path, content, message, sha, branch string) (json.RawMessage, error)

	ListIssues(ctx context.Context, owner, repo, state string) (json.RawMessage, error)
	CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (json.RawMessage, error)
	UpdateIssue(ctx context.Context, owner, repo string, number int, patch IssuePatch) (json.RawMessage, error)

	ListBranches(ctx context.Context, owner, repo string) (json.RawMessage, error)

	SearchRepositories(ctx context.Context, query, sort, order string) (json.RawMessage, error)
	SearchUsers(ctx context.Context, query string) (json.RawMessage, error)
}
