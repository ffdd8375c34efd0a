// ABOUTME: JSON update endpoint: POST /dnsup/v1/update.
// ABOUTME: The key may arrive in the body, as a Bearer token, or as ?key=.

package httpfront

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mauromedda/dnsupd/internal/engine"
)

// updateBody is the request envelope of the JSON endpoint.
type updateBody struct {
	Zone    string                 `json:"zone"`
	Key     string                 `json:"key,omitempty"`
	Updates []engine.UpdateRequest `json:"updates"`
}

type opResult struct {
	Status string `json:"status"`
	Op     string `json:"op"`
}

type updateResponse struct {
	Status  string     `json:"status"`
	Results []opResult `json:"results,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var body updateBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	if body.Zone == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing zone"})
		return
	}

	key := body.Key
	if key == "" {
		key = bearerOrQueryKey(r)
	}

	res := s.engine.Submit(r.Context(), engine.Request{
		Zone:       body.Zone,
		Credential: engine.Credential{Secret: key},
		JSON:       body.Updates,
	})

	status := statusFor(res, http.StatusForbidden)
	switch res.Kind {
	case engine.Applied:
		out := updateResponse{Status: "ok", Results: make([]opResult, 0, len(res.Ops))}
		for _, op := range res.Ops {
			out.Results = append(out.Results, opResult{Status: "ok", Op: op.String()})
		}
		writeJSON(w, status, out)
	case engine.Denied:
		writeJSON(w, status, errorResponse{Error: "invalid DNS update key for " + body.Zone})
	default:
		writeJSON(w, status, errorResponse{Error: res.Err.Error()})
	}
}

// bearerOrQueryKey extracts the secret from the Authorization header or the
// key query parameter. Query decoding turns '+' into spaces; base64 secrets
// legitimately contain '+', so spaces are folded back.
func bearerOrQueryKey(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[len("bearer "):])
	}
	if k := r.URL.Query().Get("key"); k != "" {
		return strings.TrimSpace(strings.ReplaceAll(k, " ", "+"))
	}
	return ""
}
