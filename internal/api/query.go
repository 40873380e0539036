package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flightqa/flightqa/internal/answer"
	"github.com/flightqa/flightqa/internal/flights"
	"github.com/flightqa/flightqa/internal/nl2sql"
	"github.com/flightqa/flightqa/internal/rowlit"
)

type queryRequest struct {
	Question string `json:"question"`
}

// handleQuery answers a question in one response body.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Answerer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ANSWERER_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	question, ok := validateQuestion(w, r, request.Question)
	if !ok {
		return
	}

	reply, err := deps.Answerer.Answer(r.Context(), question)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		status, code, retryable := classifyAnswerError(err)
		writeError(r.Context(), w, status, code, answer.ErrorMessage(err), retryable, map[string]any{"sql_query": reply.SQL})
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func classifyAnswerError(err error) (int, string, bool) {
	var parseErr *rowlit.ParseError
	switch {
	case errors.Is(err, answer.ErrNotFlightRelated):
		return http.StatusBadRequest, "NOT_FLIGHT_RELATED", false
	case errors.Is(err, answer.ErrNoFlights):
		return http.StatusNotFound, "NO_FLIGHTS", false
	case errors.Is(err, nl2sql.ErrGenerationExhausted):
		return http.StatusUnprocessableEntity, "SQL_GENERATION_EXHAUSTED", true
	case errors.Is(err, flights.ErrExecution):
		return http.StatusBadGateway, "SQL_EXECUTION_ERROR", false
	case errors.As(err, &parseErr):
		return http.StatusBadGateway, "RESULT_PARSE_ERROR", false
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "ANSWER_TIMEOUT", true
	default:
		return http.StatusInternalServerError, "ANSWER_FAILED", true
	}
}
