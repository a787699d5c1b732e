package httpapi

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
)

// wantsCBOR reports whether the Accept header lists application/cbor.
func wantsCBOR(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == contentTypeCBOR {
			return true
		}
	}
	return false
}

// render writes v with the negotiated encoding.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, v any) {
	var (
		body []byte
		ct   string
		err  error
	)
	if wantsCBOR(r) {
		body, err = cbor.Marshal(v)
		ct = contentTypeCBOR
	} else {
		body, err = json.Marshal(v)
		ct = contentTypeJSON
	}
	if err != nil {
		s.logger.Error("encode response", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
