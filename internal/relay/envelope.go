// Package relay implements the core of GitRelay: decoding HTTP-shaped
// request envelopes delivered over a callback channel, dispatching them
// against an ordered route table, and building HTTP-shaped response
// envelopes from upstream results or failures.
package relay

// AckOK is the fixed acknowledgement token returned to the callback layer
// alongside every response envelope, regardless of the response status.
const AckOK = "SUCCESS"

// RequestLine carries the HTTP-shaped method and percent-encoded URI of an
// inbound envelope.
type RequestLine struct {
	Method string `json:"method"`
	URI    string `json:"uri"`
}

// RequestEnvelope is an inbound request as delivered by the callback layer.
// Immutable once received.
type RequestEnvelope struct {
	RequestLine RequestLine       `json:"requestLine"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        string            `json:"body,omitempty"`
}

// StatusLine carries the HTTP-shaped status of an outbound envelope.
type StatusLine struct {
	Code         int    `json:"code"`
	ReasonPhrase string `json:"reasonPhrase"`
}

// ResponseEnvelope is the outbound response. Headers always include a JSON
// content type and Body is always valid JSON text, including on failure.
type ResponseEnvelope struct {
	StatusLine StatusLine        `json:"statusLine"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}
