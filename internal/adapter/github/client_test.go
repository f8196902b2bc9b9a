package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Wirebird/gitrelay/internal/port/upstream"
	"github.com/Wirebird/gitrelay/internal/resilience"
)

type captured struct {
	method string
	path   string
	query  string
	header http.Header
	body   map[string]any
}

// newTestClient spins up a fake API server and returns a client pointed at
// it plus a pointer to the last captured request.
func newTestClient(t *testing.T, status int, response string) (*Client, *captured) {
	t.Helper()
	cap := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cap.method = r.Method
		cap.path = r.URL.Path
		cap.query = r.URL.RawQuery
		cap.header = r.Header.Clone()
		cap.body = nil
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &cap.body)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", 5*time.Second, Options{}), cap
}

func TestRequestHeaders(t *testing.T) {
	c, cap := newTestClient(t, http.StatusOK, `{"login":"me"}`)

	if _, err := c.GetAuthenticatedUser(context.Background()); err != nil {
		t.Fatalf("GetAuthenticatedUser: %v", err)
	}

	if got := cap.header.Get("Authorization"); got != "token test-token" {
		t.Errorf("Authorization = %q", got)
	}
	if got := cap.header.Get("Accept"); got != "application/vnd.github+json" {
		t.Errorf("Accept = %q", got)
	}
	if got := cap.header.Get("X-GitHub-Api-Version"); got == "" {
		t.Error("missing API version header")
	}
}

func TestGetUserEscapesUsername(t *testing.T) {
	c, cap := newTestClient(t, http.StatusOK, `{}`)

	if _, err := c.GetUser(context.Background(), "octo cat"); err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if cap.path != "/users/octo cat" {
		t.Errorf("server saw path %q", cap.path)
	}
}

func TestCreateFileEncodesContent(t *testing.T) {
	c, cap := newTestClient(t, http.StatusCreated, `{"content":{}}`)

	_, err := c.CreateFile(context.Background(), "o", "r", "docs/a.md", "hello", "add a", "main")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	if cap.method != http.MethodPut {
		t.Errorf("method = %q, want PUT", cap.method)
	}
	if cap.path != "/repos/o/r/contents/docs/a.md" {
		t.Errorf("path = %q", cap.path)
	}
	want := base64.StdEncoding.EncodeToString([]byte("hello"))
	if cap.body["content"] != want {
		t.Errorf("content = %v, want %q", cap.body["content"], want)
	}
	if _, ok := cap.body["sha"]; ok {
		t.Error("create payload must not carry a sha")
	}
}

func TestUpdateFileCarriesSHA(t *testing.T) {
	c, cap := newTestClient(t, http.StatusOK, `{"content":{}}`)

	_, err := c.UpdateFile(context.Background(), "o", "r", "a.md", "hi", "edit", "abc123", "dev")
	if err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}
	if cap.body["sha"] != "abc123" || cap.body["branch"] != "dev" {
		t.Errorf("sha/branch = %v/%v", cap.body["sha"], cap.body["branch"])
	}
}

func TestUpdateIssueOmitsEmptyFields(t *testing.T) {
	c, cap := newTestClient(t, http.StatusOK, `{}`)

	_, err := c.UpdateIssue(context.Background(), "o", "r", 7, upstream.IssuePatch{State: "closed"})
	if err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}

	if cap.method != http.MethodPatch || cap.path != "/repos/o/r/issues/7" {
		t.Errorf("request = %s %s", cap.method, cap.path)
	}
	if cap.body["state"] != "closed" {
		t.Errorf("state = %v", cap.body["state"])
	}
	if _, ok := cap.body["title"]; ok {
		t.Error("empty title must be omitted")
	}
	if _, ok := cap.body["body"]; ok {
		t.Error("empty body must be omitted")
	}
}

func TestSearchOmitsEmptySort(t *testing.T) {
	c, cap := newTestClient(t, http.StatusOK, `{"items":[]}`)

	if _, err := c.SearchRepositories(context.Background(), "python ml", "", "desc"); err != nil {
		t.Fatalf("SearchRepositories: %v", err)
	}
	if cap.query != "order=desc&q=python+ml" {
		t.Errorf("query = %q", cap.query)
	}
}

func TestEmptyResponseBecomesEmptyObject(t *testing.T) {
	c, _ := newTestClient(t, http.StatusNoContent, "")

	got, err := c.DeleteRepo(context.Background(), "o", "r")
	if err != nil {
		t.Fatalf("DeleteRepo: %v", err)
	}
	if string(got) != "{}" {
		t.Errorf("result = %q, want {}", got)
	}
}

func TestRejectionBecomesStatusError(t *testing.T) {
	c, _ := newTestClient(t, http.StatusUnprocessableEntity, `{"message":"Validation Failed"}`)

	_, err := c.CreateRepo(context.Background(), "demo", "", false)
	if err == nil {
		t.Fatal("expected error")
	}

	se, ok := upstream.AsStatusError(err)
	if !ok {
		t.Fatalf("error %T is not a StatusError", err)
	}
	if se.StatusCode != 422 || se.Message != "Validation Failed" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestRejectionWithoutMessageUsesStatusText(t *testing.T) {
	c, _ := newTestClient(t, http.StatusNotFound, `not json`)

	_, err := c.GetRepo(context.Background(), "o", "r")
	se, ok := upstream.AsStatusError(err)
	if !ok {
		t.Fatalf("error %T is not a StatusError", err)
	}
	if se.Message != "Not Found" {
		t.Errorf("message = %q", se.Message)
	}
}

func TestTransportFailureIsUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "t", 200*time.Millisecond, Options{})

	_, err := c.GetAuthenticatedUser(context.Background())
	if !errors.Is(err, upstream.ErrUnreachable) {
		t.Fatalf("error = %v, want ErrUnreachable", err)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "t", 100*time.Millisecond, Options{
		Breaker: resilience.NewBreaker(2, time.Minute),
	})

	ctx := context.Background()
	for range 2 {
		if _, err := c.GetAuthenticatedUser(ctx); err == nil {
			t.Fatal("expected transport failure")
		}
	}

	_, err := c.GetAuthenticatedUser(ctx)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
}
