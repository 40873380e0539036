package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/flightqa/flightqa/internal/answer"
)

// handleStream serves the answer as server-sent events, one JSON event per
// data frame.
func handleStream(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Answerer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ANSWERER_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}
	question, ok := validateQuestion(w, r, r.URL.Query().Get("question"))
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(r.Context(), w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "response writer does not support streaming", false, nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Pipeline failures are already delivered as an error event.
	_ = deps.Answerer.Stream(r.Context(), question, func(event answer.Event) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}

func validateQuestion(w http.ResponseWriter, r *http.Request, raw string) (string, bool) {
	question, err := answer.NormalizeQuestion(raw)
	switch {
	case errors.Is(err, answer.ErrQuestionRequired):
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", err.Error(), false, nil)
		return "", false
	case err != nil:
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_TOO_LONG", err.Error(), false, nil)
		return "", false
	}
	return question, true
}
