package relay

import (
	"encoding/json"
	"net/http"
)

// Failures collapse to a 500 with only the message text: the upstream's own
// status code is intentionally not propagated outward. The classified error
// still carries it for logs and callers inside the process.

type notFoundBody struct {
	Error string `json:"error"`
	Path  string `json:"path"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

func okResponse(result json.RawMessage) ResponseEnvelope {
	return ResponseEnvelope{
		StatusLine: StatusLine{Code: http.StatusOK, ReasonPhrase: "OK"},
		Headers:    jsonHeaders(),
		Body:       string(result),
	}
}

func notFoundResponse(path string) ResponseEnvelope {
	body, _ := json.Marshal(notFoundBody{Error: "Endpoint not found", Path: path})
	return ResponseEnvelope{
		StatusLine: StatusLine{Code: http.StatusNotFound, ReasonPhrase: "Not Found"},
		Headers:    jsonHeaders(),
		Body:       string(body),
	}
}

func errorResponse(err error) ResponseEnvelope {
	body, _ := json.Marshal(errorBody{Error: "Internal server error", Message: err.Error()})
	return ResponseEnvelope{
		StatusLine: StatusLine{Code: http.StatusInternalServerError, ReasonPhrase: "Internal Server Error"},
		Headers:    jsonHeaders(),
		Body:       string(body),
	}
}
