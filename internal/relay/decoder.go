package relay

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// request is the normalized form of an inbound envelope: decoded path,
// parsed query and body. Derived once per request, never mutated.
type request struct {
	method string
	path   string
	segs   []string // path split on "/"; segs[0] is always ""
	query  url.Values
	body   map[string]any
}

// decode normalizes a raw envelope. The URI is split before any
// percent-decoding, so a malformed escape in the query never poisons the
// path. Path decoding is lenient: malformed escapes stay literal, '+' stays
// literal. Malformed query pairs are ignored; a malformed JSON body is the
// only hard failure.
func decode(env RequestEnvelope) (*request, error) {
	rawPath, rawQuery, _ := strings.Cut(env.RequestLine.URI, "?")
	path := pathUnescapeLenient(rawPath)

	// ParseQuery fills in every well-formed pair before reporting the first
	// malformed one; dropping the error gives the tolerant semantics we want.
	query, _ := url.ParseQuery(rawQuery)

	body := map[string]any{}
	if strings.TrimSpace(env.Body) != "" {
		if err := json.Unmarshal([]byte(env.Body), &body); err != nil {
			return nil, fmt.Errorf("parse request body: %w", err)
		}
	}

	return &request{
		method: env.RequestLine.Method,
		path:   path,
		segs:   strings.Split(path, "/"),
		query:  query,
		body:   body,
	}, nil
}

// pathUnescapeLenient percent-decodes s, leaving any '%' not followed by
// two hex digits literal instead of failing.
func pathUnescapeLenient(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unHex(s[i+1])<<4 | unHex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	switch {
	case '0' <= c && c <= '9', 'a' <= c && c <= 'f', 'A' <= c && c <= 'F':
		return true
	}
	return false
}

func unHex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// queryFirst returns the first non-blank value for key, or def when the key
// is absent or carries only blank values.
func (r *request) queryFirst(key, def string) string {
	for _, v := range r.query[key] {
		if v != "" {
			return v
		}
	}
	return def
}

// stringField returns the body field as a string, or def when absent or not
// a string.
func (r *request) stringField(key, def string) string {
	if s, ok := r.body[key].(string); ok {
		return s
	}
	return def
}

// boolField returns the body field as a bool, or def when absent or not a bool.
func (r *request) boolField(key string, def bool) bool {
	if b, ok := r.body[key].(bool); ok {
		return b
	}
	return def
}

// requireString returns the body field as a string, erroring when it is
// absent or not a string.
func (r *request) requireString(key string) (string, error) {
	v, ok := r.body[key]
	if !ok {
		return "", fmt.Errorf("missing required field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string", key)
	}
	return s, nil
}

// stringList returns the body field as a list of strings. Non-string
// elements are skipped; an absent or non-list field yields nil.
func (r *request) stringList(key string) []string {
	arr, ok := r.body[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ownerRepo extracts the owner and repository segments from a /repos/… path.
func (r *request) ownerRepo() (owner, repo string, err error) {
	if len(r.segs) < 4 {
		return "", "", fmt.Errorf("path %q is missing owner/repo segments", r.path)
	}
	return r.segs[2], r.segs[3], nil
}
