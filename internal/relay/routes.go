package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// handlerFunc invokes one upstream operation with parameters extracted from
// the normalized request.
type handlerFunc func(ctx context.Context, req *request) (json.RawMessage, error)

// route is one rule of the dispatch table: a predicate over (method, path)
// plus the handler it selects. Rules are evaluated in table order and the
// first match wins; several predicates are suffix/substring tests whose
// correctness depends on that order.
type route struct {
	name    string
	methods string // diagnostic listing only
	shape   string // diagnostic listing only
	match   func(method, path string, segs []string) bool
	call    handlerFunc
}

// RouteInfo describes one route rule for diagnostics.
type RouteInfo struct {
	Name    string `json:"name"`
	Methods string `json:"methods"`
	Shape   string `json:"shape"`
}

// buildTable returns the ordered route table. The order is significant:
// the exact-count repo rule must run before the contents/issues/forks
// suffix rules, the …/issues suffix rule before the /issues/{number} rule,
// and the create-repo rule last so the GET-only /user/repos rule cannot
// shadow it.
func buildTable(h *handlers) []route {
	return []route{
		{
			name: "current_user", methods: "GET", shape: "/user",
			match: func(method, path string, _ []string) bool {
				return method == http.MethodGet && path == "/user"
			},
			call: h.currentUser,
		},
		{
			name: "user_profile", methods: "GET", shape: "/users/{username}",
			match: func(method, path string, _ []string) bool {
				return method == http.MethodGet && strings.HasPrefix(path, "/users/")
			},
			call: h.userProfile,
		},
		{
			name: "own_repos", methods: "GET", shape: "/user/repos",
			match: func(method, path string, _ []string) bool {
				return method == http.MethodGet && path == "/user/repos"
			},
			call: h.ownRepos,
		},
		{
			name: "repo", methods: "GET, DELETE", shape: "/repos/{owner}/{repo}",
			match: func(method, path string, _ []string) bool {
				return (method == http.MethodGet || method == http.MethodDelete) &&
					strings.HasPrefix(path, "/repos/") && strings.Count(path, "/") == 3
			},
			call: h.repo,
		},
		{
			name: "file_content", methods: "GET, PUT", shape: "/repos/{owner}/{repo}/contents/{path}",
			match: func(method, path string, _ []string) bool {
				return (method == http.MethodGet || method == http.MethodPut) &&
					strings.Contains(path, "/contents/")
			},
			call: h.fileContent,
		},
		{
			name: "issues", methods: "GET, POST", shape: "/repos/{owner}/{repo}/issues",
			match: func(method, path string, _ []string) bool {
				return (method == http.MethodGet || method == http.MethodPost) &&
					strings.HasSuffix(path, "/issues")
			},
			call: h.issues,
		},
		{
			name: "issue_update", methods: "PATCH", shape: "/repos/{owner}/{repo}/issues/{number}",
			match: func(method, path string, _ []string) bool {
				return method == http.MethodPatch &&
					strings.Contains(path, "/issues/") && strings.Count(path, "/") == 5
			},
			call: h.issueUpdate,
		},
		{
			name: "search_repos", methods: "GET", shape: "/search/repositories",
			match: func(method, path string, _ []string) bool {
				return method == http.MethodGet && path == "/search/repositories"
			},
			call: h.searchRepos,
		},
		{
			name: "search_users", methods: "GET", shape: "/search/users",
			match: func(method, path string, _ []string) bool {
				return method == http.MethodGet && path == "/search/users"
			},
			call: h.searchUsers,
		},
		{
			name: "fork", methods: "*", shape: "/repos/{owner}/{repo}/forks",
			match: func(_ string, path string, _ []string) bool {
				return strings.HasSuffix(path, "/forks")
			},
			call: h.fork,
		},
		{
			name: "branches", methods: "GET", shape: "/repos/{owner}/{repo}/branches",
			match: func(method, path string, _ []string) bool {
				return method == http.MethodGet && strings.HasSuffix(path, "/branches")
			},
			call: h.branches,
		},
		{
			name: "create_repo", methods: "POST", shape: "/user/repos",
			match: func(method, path string, _ []string) bool {
				return method == http.MethodPost && path == "/user/repos"
			},
			call: h.createRepo,
		},
	}
}
