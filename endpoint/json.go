package endpoint

import (
	"encoding/json"
	"net/http"
)

// JSONRenderer serializes a value as JSON and writes it to the response.
//
// Content-Type is always set to "application/json". If encoding fails the
// status line has already been written, so the returned error is only a
// best-effort signal for logging.
//
// The encoder does not escape HTML and appends a trailing newline.
type JSONRenderer struct {
	Status int
	Value  any
}

func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")

	status := jr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(jr.Value)
}
