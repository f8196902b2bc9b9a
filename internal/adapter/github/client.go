// Package github implements the upstream.Client port against the GitHub
// REST API.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	relayotel "github.com/Wirebird/gitrelay/internal/adapter/otel"
	"github.com/Wirebird/gitrelay/internal/port/upstream"
	"github.com/Wirebird/gitrelay/internal/resilience"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const apiVersion = "2022-11-28"

// Options configures optional reliability and telemetry hooks for the client.
type Options struct {
	Breaker *resilience.Breaker
	Metrics *relayotel.Metrics
}

// Client talks to the GitHub REST API. It implements upstream.Client and
// additionally exposes a few operations beyond that port.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *resilience.Breaker
	metrics    *relayotel.Metrics
}

var _ upstream.Client = (*Client)(nil)

// NewClient creates a GitHub API client with the given base URL and token.
func NewClient(baseURL, token string, timeout time.Duration, opts Options) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    opts.Breaker,
		metrics:    opts.Metrics,
	}
}

func (c *Client) GetAuthenticatedUser(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/user", nil, nil)
}

func (c *Client) GetUser(ctx context.Context, username string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/users/"+url.PathEscape(username), nil, nil)
}

func (c *Client) ListOwnRepos(ctx context.Context, perPage int) (json.RawMessage, error) {
	q := url.Values{"per_page": {strconv.Itoa(perPage)}}
	return c.doRequest(ctx, http.MethodGet, "/user/repos", q, nil)
}

func (c *Client) GetRepo(ctx context.Context, owner, repo string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, repoPath(owner, repo), nil, nil)
}

func (c *Client) CreateRepo(ctx context.Context, name, description string, private bool) (json.RawMessage, error) {
	payload := map[string]any{
		"name":        name,
		"description": description,
		"private":     private,
	}
	return c.doRequest(ctx, http.MethodPost, "/user/repos", nil, payload)
}

func (c *Client) DeleteRepo(ctx context.Context, owner, repo string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodDelete, repoPath(owner, repo), nil, nil)
}

func (c *Client) ForkRepo(ctx context.Context, owner, repo string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, repoPath(owner, repo)+"/forks", nil, nil)
}

func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) (json.RawMessage, error) {
	q := url.Values{"ref": {ref}}
	return c.doRequest(ctx, http.MethodGet, contentsPath(owner, repo, path), q, nil)
}

// CreateFile adds a new file. The content arrives as raw text and is
// base64-encoded here, the transport encoding the contents API expects.
func (c *Client) CreateFile(ctx context.Context, owner, repo, path, content, message, branch string) (json.RawMessage, error) {
	payload := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  branch,
	}
	return c.doRequest(ctx, http.MethodPut, contentsPath(owner, repo, path), nil, payload)
}

// UpdateFile replaces an existing file identified by its blob SHA.
func (c *Client) UpdateFile(ctx context.Context, owner, repo, path, content, message, sha, branch string) (json.RawMessage, error) {
	payload := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"sha":     sha,
		"branch":  branch,
	}
	return c.doRequest(ctx, http.MethodPut, contentsPath(owner, repo, path), nil, payload)
}

// DeleteFile removes a file from the given branch. Not part of the
// upstream.Client port; available to callers holding the concrete client.
func (c *Client) DeleteFile(ctx context.Context, owner, repo, path, message, sha, branch string) (json.RawMessage, error) {
	payload := map[string]any{
		"message": message,
		"sha":     sha,
		"branch":  branch,
	}
	return c.doRequest(ctx, http.MethodDelete, contentsPath(owner, repo, path), nil, payload)
}

func (c *Client) ListIssues(ctx context.Context, owner, repo, state string) (json.RawMessage, error) {
	q := url.Values{"state": {state}}
	return c.doRequest(ctx, http.MethodGet, repoPath(owner, repo)+"/issues", q, nil)
}

func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (json.RawMessage, error) {
	payload := map[string]any{
		"title": title,
		"body":  body,
	}
	if len(labels) > 0 {
		payload["labels"] = labels
	}
	return c.doRequest(ctx, http.MethodPost, repoPath(owner, repo)+"/issues", nil, payload)
}

func (c *Client) UpdateIssue(ctx context.Context, owner, repo string, number int, patch upstream.IssuePatch) (json.RawMessage, error) {
	payload := map[string]any{}
	if patch.Title != "" {
		payload["title"] = patch.Title
	}
	if patch.Body != "" {
		payload["body"] = patch.Body
	}
	if patch.State != "" {
		payload["state"] = patch.State
	}
	path := fmt.Sprintf("%s/issues/%d", repoPath(owner, repo), number)
	return c.doRequest(ctx, http.MethodPatch, path, nil, payload)
}

func (c *Client) ListBranches(ctx context.Context, owner, repo string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, repoPath(owner, repo)+"/branches", nil, nil)
}

// CreateBranch creates a new branch ref pointing at the given commit SHA.
// Not part of the upstream.Client port.
func (c *Client) CreateBranch(ctx context.Context, owner, repo, branch, sha string) (json.RawMessage, error) {
	payload := map[string]any{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	}
	return c.doRequest(ctx, http.MethodPost, repoPath(owner, repo)+"/git/refs", nil, payload)
}

// ListPullRequests lists pull requests in the given state. Not part of the
// upstream.Client port.
func (c *Client) ListPullRequests(ctx context.Context, owner, repo, state string) (json.RawMessage, error) {
	q := url.Values{"state": {state}}
	return c.doRequest(ctx, http.MethodGet, repoPath(owner, repo)+"/pulls", q, nil)
}

// CreatePullRequest opens a pull request from head into base. Not part of
// the upstream.Client port.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo, title, head, base, body string) (json.RawMessage, error) {
	payload := map[string]any{
		"title": title,
		"head":  head,
		"base":  base,
		"body":  body,
	}
	return c.doRequest(ctx, http.MethodPost, repoPath(owner, repo)+"/pulls", nil, payload)
}

func (c *Client) SearchRepositories(ctx context.Context, query, sort, order string) (json.RawMessage, error) {
	q := url.Values{"q": {query}, "order": {order}}
	if sort != "" {
		q.Set("sort", sort)
	}
	return c.doRequest(ctx, http.MethodGet, "/search/repositories", q, nil)
}

func (c *Client) SearchUsers(ctx context.Context, query string) (json.RawMessage, error) {
	q := url.Values{"q": {query}}
	return c.doRequest(ctx, http.MethodGet, "/search/users", q, nil)
}

func repoPath(owner, repo string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
}

// contentsPath escapes each path segment individually so the file path keeps
// its slashes on the wire.
func contentsPath(owner, repo, path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return repoPath(owner, repo) + "/contents/" + strings.Join(segs, "/")
}

// doRequest performs one API call, routed through the circuit breaker when
// one is configured. Failures are classified: a *upstream.StatusError for a
// remote rejection, an upstream.ErrUnreachable-wrapped error for transport
// trouble.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload any) (json.RawMessage, error) {
	var result json.RawMessage
	call := func() error {
		var err error
		result, err = c.do(ctx, method, path, query, payload)
		return err
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (json.RawMessage, error) {
	ctx, span := relayotel.StartUpstreamSpan(ctx, method, path)
	defer span.End()
	start := time.Now()

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", upstream.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", upstream.ErrUnreachable, err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("method", method)))
	}

	if resp.StatusCode >= 400 {
		return nil, &upstream.StatusError{
			StatusCode: resp.StatusCode,
			Message:    apiMessage(respBody, resp.StatusCode),
		}
	}

	// DELETE and a few other calls answer 204 with no body.
	if len(respBody) == 0 {
		return json.RawMessage("{}"), nil
	}
	return respBody, nil
}

// apiMessage extracts the "message" field GitHub puts in error bodies,
// falling back to the standard status text.
func apiMessage(body []byte, statusCode int) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return http.StatusText(statusCode)
}
