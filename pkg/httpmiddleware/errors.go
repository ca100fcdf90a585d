package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
)

// writeError writes the JSON error body shared with the API handlers:
// {"error": kind, "message": message}.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("error")
	e.Str(kind)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
