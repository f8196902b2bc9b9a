package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Wirebird/gitrelay/internal/port/upstream"
)

const (
	defaultPerPage = 30
	defaultRef     = "main"
	defaultBranch  = "main"
	defaultState   = "open"
	defaultOrder   = "desc"
)

// handlers are thin adapters from extracted route parameters and body fields
// to upstream client calls. They substitute named defaults for optional
// fields and nothing more: no retries, no caching.
type handlers struct {
	up upstream.Client
}

func (h *handlers) currentUser(ctx context.Context, _ *request) (json.RawMessage, error) {
	return h.up.GetAuthenticatedUser(ctx)
}

func (h *handlers) userProfile(ctx context.Context, req *request) (json.RawMessage, error) {
	username := strings.TrimPrefix(req.path, "/users/")
	return h.up.GetUser(ctx, username)
}

func (h *handlers) ownRepos(ctx context.Context, req *request) (json.RawMessage, error) {
	perPage := defaultPerPage
	if raw := req.queryFirst("per_page", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid per_page %q: %w", raw, err)
		}
		perPage = n
	}
	return h.up.ListOwnRepos(ctx, perPage)
}

func (h *handlers) repo(ctx context.Context, req *request) (json.RawMessage, error) {
	owner, repo, err := req.ownerRepo()
	if err != nil {
		return nil, err
	}
	if req.method == http.MethodDelete {
		return h.up.DeleteRepo(ctx, owner, repo)
	}
	return h.up.GetRepo(ctx, owner, repo)
}

func (h *handlers) fileContent(ctx context.Context, req *request) (json.RawMessage, error) {
	owner, repo, err := req.ownerRepo()
	if err != nil {
		return nil, err
	}

	// Everything after the "contents" segment is the file path.
	var filePath string
	if len(req.segs) > 5 {
		filePath = strings.Join(req.segs[5:], "/")
	}

	if req.method == http.MethodPut {
		return h.createOrUpdateFile(ctx, req, owner, repo, filePath)
	}

	ref := req.queryFirst("ref", defaultRef)
	return h.up.GetFileContent(ctx, owner, repo, filePath, ref)
}

// createOrUpdateFile decodes the transport-encoded content and branches on
// the presence of a blob SHA: with one the request is an update, without
// one a create.
func (h *handlers) createOrUpdateFile(ctx context.Context, req *request, owner, repo, filePath string) (json.RawMessage, error) {
	encoded, err := req.requireString("content")
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	content := string(raw)

	message, err := req.requireString("message")
	if err != nil {
		return nil, err
	}

	branch := req.stringField("branch", defaultBranch)

	if sha := req.stringField("sha", ""); sha != "" {
		return h.up.UpdateFile(ctx, owner, repo, filePath, content, message, sha, branch)
	}
	return h.up.CreateFile(ctx, owner, repo, filePath, content, message, branch)
}

func (h *handlers) issues(ctx context.Context, req *request) (json.RawMessage, error) {
	owner, repo, err := req.ownerRepo()
	if err != nil {
		return nil, err
	}

	if req.method == http.MethodPost {
		title, err := req.requireString("title")
		if err != nil {
			return nil, err
		}
		body := req.stringField("body", "")
		labels := req.stringList("labels")
		return h.up.CreateIssue(ctx, owner, repo, title, body, labels)
	}

	state := req.queryFirst("state", defaultState)
	return h.up.ListIssues(ctx, owner, repo, state)
}

func (h *handlers) issueUpdate(ctx context.Context, req *request) (json.RawMessage, error) {
	owner, repo, err := req.ownerRepo()
	if err != nil {
		return nil, err
	}
	number, err := strconv.Atoi(req.segs[5])
	if err != nil {
		return nil, fmt.Errorf("invalid issue number %q: %w", req.segs[5], err)
	}

	// Absent fields stay empty and are omitted from the upstream payload.
	patch := upstream.IssuePatch{
		Title: req.stringField("title", ""),
		Body:  req.stringField("body", ""),
		State: req.stringField("state", ""),
	}
	return h.up.UpdateIssue(ctx, owner, repo, number, patch)
}

func (h *handlers) searchRepos(ctx context.Context, req *request) (json.RawMessage, error) {
	query := req.queryFirst("q", "")
	sort := req.queryFirst("sort", "")
	order := req.queryFirst("order", defaultOrder)
	return h.up.SearchRepositories(ctx, query, sort, order)
}

func (h *handlers) searchUsers(ctx context.Context, req *request) (json.RawMessage, error) {
	return h.up.SearchUsers(ctx, req.queryFirst("q", ""))
}

func (h *handlers) fork(ctx context.Context, req *request) (json.RawMessage, error) {
	owner, repo, err := req.ownerRepo()
	if err != nil {
		return nil, err
	}
	return h.up.ForkRepo(ctx, owner, repo)
}

func (h *handlers) branches(ctx context.Context, req *request) (json.RawMessage, error) {
	owner, repo, err := req.ownerRepo()
	if err != nil {
		return nil, err
	}
	return h.up.ListBranches(ctx, owner, repo)
}

func (h *handlers) createRepo(ctx context.Context, req *request) (json.RawMessage, error) {
	name, err := req.requireString("name")
	if err != nil {
		return nil, err
	}
	description := req.stringField("description", "")
	private := req.boolField("private", false)
	return h.up.CreateRepo(ctx, name, description, private)
}
