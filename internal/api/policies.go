package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/flightqa/flightqa/internal/storage"
)

const maxPolicyBytes = 1 << 20

type policyObject struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

func handleListAirlines(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Airlines == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "AIRLINES_NOT_CONFIGURED", "airline catalog is not configured", false, nil)
		return
	}
	type airlineView struct {
		Name      string `json:"name"`
		HasPolicy bool   `json:"has_policy"`
	}
	airlines := deps.Airlines.Airlines()
	out := make([]airlineView, 0, len(airlines))
	for _, airline := range airlines {
		out = append(out, airlineView{Name: airline.Name, HasPolicy: airline.PolicyFile != ""})
	}
	writeJSON(w, http.StatusOK, map[string]any{"airlines": out})
}

func handleListPolicies(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.PolicyStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "POLICY_STORE_NOT_CONFIGURED", "policy store is not configured", false, nil)
		return
	}
	objects, err := deps.PolicyStore.List(r.Context(), "")
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "POLICY_STORE_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	out := make([]policyObject, 0, len(objects))
	for _, object := range objects {
		out = append(out, toPolicyObject(object))
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": out})
}

// handlePutPolicy stores a policy document. Documents already cached by a
// running process are not reloaded.
func handlePutPolicy(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.PolicyStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "POLICY_STORE_NOT_CONFIGURED", "policy store is not configured", false, nil)
		return
	}
	key, err := storage.PolicyDocumentKey(r.PathValue("file"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_POLICY_FILE", err.Error(), false, nil)
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPolicyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "POLICY_TOO_LARGE", "policy document exceeds 1 MiB", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", err.Error(), false, nil)
		return
	}
	if strings.TrimSpace(string(raw)) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "EMPTY_POLICY", "policy document is empty", false, nil)
		return
	}

	info, err := deps.PolicyStore.Put(r.Context(), key, bytes.NewReader(raw), int64(len(raw)), storage.PutOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "POLICY_STORE_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyObject(info))
}

func toPolicyObject(info storage.ObjectInfo) policyObject {
	object := policyObject{Key: info.Key, Size: info.Size, ETag: info.ETag}
	if !info.LastModified.IsZero() {
		object.LastModified = info.LastModified.UTC().Format("2006-01-02T15:04:05Z")
	}
	return object
}
