package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Wirebird/gitrelay/internal/port/upstream"
)

// fakeUpstream records the single operation invoked and its arguments.
type fakeUpstream struct {
	op     string
	args   map[string]any
	result json.RawMessage
	err    error
}

// Compile-time interface check.
var _ upstream.Client = (*fakeUpstream)(nil)

func (f *fakeUpstream) record(op string, args map[string]any) (json.RawMessage, error) {
	f.op = op
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeUpstream) GetAuthenticatedUser(context.Context) (json.RawMessage, error) {
	return f.record("GetAuthenticatedUser", nil)
}

func (f *fakeUpstream) GetUser(_ context.Context, username string) (json.RawMessage, error) {
	return f.record("GetUser", map[string]any{"username": username})
}

func (f *fakeUpstream) ListOwnRepos(_ context.Context, perPage int) (json.RawMessage, error) {
	return f.record("ListOwnRepos", map[string]any{"perPage": perPage})
}

func (f *fakeUpstream) GetRepo(_ context.Context, owner, repo string) (json.RawMessage, error) {
	return f.record("GetRepo", map[string]any{"owner": owner, "repo": repo})
}

func (f *fakeUpstream) CreateRepo(_ context.Context, name, description string, private bool) (json.RawMessage, error) {
	return f.record("CreateRepo", map[string]any{"name": name, "description": description, "private": private})
}

func (f *fakeUpstream) DeleteRepo(_ context.Context, owner, repo string) (json.RawMessage, error) {
	return f.record("DeleteRepo", map[string]any{"owner": owner, "repo": repo})
}

func (f *fakeUpstream) ForkRepo(_ context.Context, owner, repo string) (json.RawMessage, error) {
	return f.record("ForkRepo", map[string]any{"owner": owner, "repo": repo})
}

func (f *fakeUpstream) GetFileContent(_ context.Context, owner, repo, path, ref string) (json.RawMessage, error) {
	return f.record("GetFileContent", map[string]any{"owner": owner, "repo": repo, "path": path, "ref": ref})
}

func (f *fakeUpstream) CreateFile(_ context.Context, owner, repo, path, content, message, branch string) (json.RawMessage, error) {
	return f.record("CreateFile", map[string]any{
		"owner": owner, "repo": repo, "path": path,
		"content": content, "message": message, "branch": branch,
	})
}

func (f *fakeUpstream) UpdateFile(_ context.Context, owner, repo, path, content, message, sha, branch string) (json.RawMessage, error) {
	return f.record("UpdateFile", map[string]any{
		"owner": owner, "repo": repo, "path": path,
		"content": content, "message": message, "sha": sha, "branch": branch,
	})
}

func (f *fakeUpstream) ListIssues(_ context.Context, owner, repo, state string) (json.RawMessage, error) {
	return f.record("ListIssues", map[string]any{"owner": owner, "repo": repo, "state": state})
}

func (f *fakeUpstream) CreateIssue(_ context.Context, owner, repo, title, body string, labels []string) (json.RawMessage, error) {
	return f.record("CreateIssue", map[string]any{
		"owner": owner, "repo": repo, "title": title, "body": body, "labels": labels,
	})
}

func (f *fakeUpstream) UpdateIssue(_ context.Context, owner, repo string, number int, patch upstream.IssuePatch) (json.RawMessage, error) {
	return f.record("UpdateIssue", map[string]any{
		"owner": owner, "repo": repo, "number": number, "patch": patch,
	})
}

func (f *fakeUpstream) ListBranches(_ context.Context, owner, repo string) (json.RawMessage, error) {
	return f.record("ListBranches", map[string]any{"owner": owner, "repo": repo})
}

func (f *fakeUpstream) SearchRepositories(_ context.Context, query, sort, order string) (json.RawMessage, error) {
	return f.record("SearchRepositories", map[string]any{"q": query, "sort": sort, "order": order})
}

func (f *fakeUpstream) SearchUsers(_ context.Context, query string) (json.RawMessage, error) {
	return f.record("SearchUsers", map[string]any{"q": query})
}

func testDispatcher(up upstream.Client) *Dispatcher {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(up, log, nil)
}

func dispatch(t *testing.T, up *fakeUpstream, method, uri, body string) ResponseEnvelope {
	t.Helper()
	return testDispatcher(up).Dispatch(context.Background(), env(method, uri, body))
}

// TestRouteSelection covers every table row, including the overlap cases:
// a shorter or longer path sharing a token with another rule must never be
// caught by the wrong rule.
func TestRouteSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		uri    string
		body   string
		wantOp string
	}{
		{"current user", "GET", "/user", "", "GetAuthenticatedUser"},
		{"user profile", "GET", "/users/octocat", "", "GetUser"},
		{"own repos", "GET", "/user/repos", "", "ListOwnRepos"},
		{"get repo", "GET", "/repos/a/b", "", "GetRepo"},
		{"delete repo", "DELETE", "/repos/a/b", "", "DeleteRepo"},
		{"file get", "GET", "/repos/a/b/contents/README.md", "", "GetFileContent"},
		{"file put create", "PUT", "/repos/a/b/contents/README.md", `{"content":"aGVsbG8=","message":"add"}`, "CreateFile"},
		{"issues list", "GET", "/repos/a/b/issues", "", "ListIssues"},
		{"issues create", "POST", "/repos/a/b/issues", `{"title":"t"}`, "CreateIssue"},
		{"issue update", "PATCH", "/repos/o/r/issues/7", `{"state":"closed"}`, "UpdateIssue"},
		{"search repos", "GET", "/search/repositories?q=x", "", "SearchRepositories"},
		{"search users", "GET", "/search/users?q=x", "", "SearchUsers"},
		{"fork", "POST", "/repos/a/b/forks", "", "ForkRepo"},
		{"branches", "GET", "/repos/a/b/branches", "", "ListBranches"},
		{"create repo", "POST", "/user/repos", `{"name":"demo"}`, "CreateRepo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUpstream{}
			resp := dispatch(t, up, tt.method, tt.uri, tt.body)

			if up.op != tt.wantOp {
				t.Fatalf("dispatched %q, want %q", up.op, tt.wantOp)
			}
			if resp.StatusLine.Code != 200 {
				t.Fatalf("status = %d, want 200 (body %s)", resp.StatusLine.Code, resp.Body)
			}
			if resp.StatusLine.ReasonPhrase != "OK" {
				t.Errorf("reason = %q, want OK", resp.StatusLine.ReasonPhrase)
			}
			if resp.Headers["Content-Type"] != "application/json" {
				t.Errorf("missing JSON content type, headers %v", resp.Headers)
			}
		})
	}
}

// TestRouteOverlap pins the order-sensitive cases: exactly one rule fires
// even when another rule's predicate would structurally match.
func TestRouteOverlap(t *testing.T) {
	t.Run("repo not caught by suffix rules", func(t *testing.T) {
		up := &fakeUpstream{}
		dispatch(t, up, "GET", "/repos/a/b", "")
		if up.op != "GetRepo" {
			t.Fatalf("dispatched %q, want GetRepo", up.op)
		}
	})

	t.Run("branches not caught by repo rule", func(t *testing.T) {
		up := &fakeUpstream{}
		dispatch(t, up, "GET", "/repos/a/b/branches", "")
		if up.op != "ListBranches" {
			t.Fatalf("dispatched %q, want ListBranches", up.op)
		}
	})

	t.Run("issues suffix not caught by issue-number rule", func(t *testing.T) {
		up := &fakeUpstream{}
		dispatch(t, up, "GET", "/repos/a/b/issues", "")
		if up.op != "ListIssues" {
			t.Fatalf("dispatched %q, want ListIssues", up.op)
		}
	})

	t.Run("issue number not caught by issues suffix rule", func(t *testing.T) {
		up := &fakeUpstream{}
		resp := dispatch(t, up, "PATCH", "/repos/o/r/issues/7", `{"state":"closed"}`)
		if up.op != "UpdateIssue" {
			t.Fatalf("dispatched %q, want UpdateIssue", up.op)
		}
		if up.args["number"] != 7 {
			t.Errorf("number = %v, want 7", up.args["number"])
		}
		patch := up.args["patch"].(upstream.IssuePatch)
		if patch.State != "closed" || patch.Title != "" || patch.Body != "" {
			t.Errorf("patch = %+v, want only state set", patch)
		}
		if resp.StatusLine.Code != 200 {
			t.Errorf("status = %d", resp.StatusLine.Code)
		}
	})

	t.Run("user repos not caught by users prefix rule", func(t *testing.T) {
		up := &fakeUpstream{}
		dispatch(t, up, "GET", "/user/repos", "")
		if up.op != "ListOwnRepos" {
			t.Fatalf("dispatched %q, want ListOwnRepos", up.op)
		}
	})

	t.Run("post user repos reaches create rule", func(t *testing.T) {
		up := &fakeUpstream{}
		dispatch(t, up, "POST", "/user/repos", `{"name":"demo"}`)
		if up.op != "CreateRepo" {
			t.Fatalf("dispatched %q, want CreateRepo", up.op)
		}
	})
}

func TestMethodMismatchFallsThrough(t *testing.T) {
	tests := []struct {
		name   string
		method string
		uri    string
	}{
		{"post on repo shape", "POST", "/repos/a/b"},
		{"get on issue number shape", "GET", "/repos/o/r/issues/7"},
		{"delete on contents shape", "DELETE", "/repos/a/b/contents/x"},
		{"post on branches", "POST", "/repos/a/b/branches"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUpstream{}
			resp := dispatch(t, up, tt.method, tt.uri, "")

			if up.op != "" {
				t.Fatalf("unexpected dispatch to %q", up.op)
			}
			if resp.StatusLine.Code != 404 {
				t.Fatalf("status = %d, want 404", resp.StatusLine.Code)
			}
		})
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	up := &fakeUpstream{}
	resp := dispatch(t, up, "GET", "/unknown/thing", "")

	if resp.StatusLine.Code != 404 || resp.StatusLine.ReasonPhrase != "Not Found" {
		t.Fatalf("status line = %+v", resp.StatusLine)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if body["error"] != "Endpoint not found" {
		t.Errorf("error = %q", body["error"])
	}
	if body["path"] != "/unknown/thing" {
		t.Errorf("path = %q, want /unknown/thing", body["path"])
	}
}

// TestUpstreamFailureCollapsesTo500 reproduces the status-collapsing
// behavior: a remote 422 still surfaces as a 500 envelope, with the remote
// message preserved in the body.
func TestUpstreamFailureCollapsesTo500(t *testing.T) {
	up := &fakeUpstream{err: &upstream.StatusError{StatusCode: 422, Message: "Validation Failed"}}
	resp := dispatch(t, up, "GET", "/repos/a/b", "")

	if resp.StatusLine.Code != 500 || resp.StatusLine.ReasonPhrase != "Internal Server Error" {
		t.Fatalf("status line = %+v, want 500", resp.StatusLine)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if body["error"] != "Internal server error" {
		t.Errorf("error = %q", body["error"])
	}
	if !strings.Contains(body["message"], "422") || !strings.Contains(body["message"], "Validation Failed") {
		t.Errorf("message = %q, want remote status and message preserved", body["message"])
	}
}

func TestMalformedBodyFailsRequest(t *testing.T) {
	up := &fakeUpstream{}
	resp := dispatch(t, up, "POST", "/user/repos", `{"name":`)

	if up.op != "" {
		t.Fatalf("unexpected dispatch to %q", up.op)
	}
	if resp.StatusLine.Code != 500 {
		t.Fatalf("status = %d, want 500", resp.StatusLine.Code)
	}
	if !strings.Contains(resp.Body, "Internal server error") {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestSuccessBodyIsUpstreamJSON(t *testing.T) {
	up := &fakeUpstream{result: json.RawMessage(`{"login":"octocat","id":1}`)}
	resp := dispatch(t, up, "GET", "/user", "")

	if resp.Body != `{"login":"octocat","id":1}` {
		t.Errorf("body = %q, want upstream JSON verbatim", resp.Body)
	}
}

// TestMalformedQueryPairDoesNotFailRequest pins the tolerant query
// semantics: a bad percent escape in one pair drops that pair and nothing
// else, and the request still dispatches.
func TestMalformedQueryPairDoesNotFailRequest(t *testing.T) {
	up := &fakeUpstream{}
	resp := dispatch(t, up, "GET", "/user/repos?bad=%zz&per_page=5", "")

	if up.op != "ListOwnRepos" {
		t.Fatalf("dispatched %q, want ListOwnRepos", up.op)
	}
	if up.args["perPage"] != 5 {
		t.Errorf("perPage = %v, want 5", up.args["perPage"])
	}
	if resp.StatusLine.Code != 200 {
		t.Fatalf("status = %d, want 200 (body %s)", resp.StatusLine.Code, resp.Body)
	}
}

func TestSearchQueryExtraction(t *testing.T) {
	up := &fakeUpstream{}
	dispatch(t, up, "GET", "/search/repositories?q=python%20ml&sort=stars&order=desc", "")

	if up.args["q"] != "python ml" {
		t.Errorf("q = %v, want %q", up.args["q"], "python ml")
	}
	if up.args["sort"] != "stars" || up.args["order"] != "desc" {
		t.Errorf("sort/order = %v/%v", up.args["sort"], up.args["order"])
	}
}

func TestRoutesListing(t *testing.T) {
	d := testDispatcher(&fakeUpstream{})
	infos := d.Routes()

	if len(infos) != 12 {
		t.Fatalf("route count = %d, want 12", len(infos))
	}
	if infos[0].Name != "current_user" {
		t.Errorf("first route = %q, want current_user", infos[0].Name)
	}
	if infos[len(infos)-1].Name != "create_repo" {
		t.Errorf("last route = %q, want create_repo", infos[len(infos)-1].Name)
	}
}
