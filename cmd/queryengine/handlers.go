package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nlq-sql/queryengine/pkg/model"
	"github.com/nlq-sql/queryengine/pkg/pipeline"
)

type server struct {
	log         *slog.Logger
	coordinator *pipeline.Coordinator
	describer   *pipeline.Describer
	llmTimeout  time.Duration
}

type connectionJSON struct {
	Dialect  string `json:"dialect"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Schema   string `json:"schema"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (c connectionJSON) toModel() model.ConnectionConfig {
	return model.ConnectionConfig{
		Dialect:     model.Dialect(c.Dialect),
		Host:        c.Host,
		Port:        c.Port,
		Database:    c.Database,
		Schema:      c.Schema,
		User:        c.User,
		Credentials: c.Password,
	}
}

type queryRequest struct {
	Question   string         `json:"question"`
	Connection connectionJSON `json:"connection"`
}

type attemptJSON struct {
	SQL   string `json:"sql"`
	Error string `json:"error,omitempty"`
}

type columnJSON struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type resultJSON struct {
	Columns   []columnJSON `json:"columns"`
	Rows      []model.Row  `json:"rows"`
	Truncated bool         `json:"truncated"`
	RowCount  int          `json:"row_count"`
	ElapsedMS int64        `json:"elapsed_ms"`
}

type queryResponse struct {
	ID        string             `json:"id"`
	SQL       string             `json:"sql,omitempty"`
	Attempts  []attemptJSON      `json:"attempts"`
	Result    *resultJSON        `json:"result,omitempty"`
	Chart     *model.ChartSpec   `json:"chart,omitempty"`
	Process   *model.ProcessFlow `json:"process,omitempty"`
	LatencyMS int64              `json:"latency_ms,omitempty"`
	ErrorKind string             `json:"error_kind,omitempty"`
	Error     string             `json:"error,omitempty"`
}

func attemptsJSON(attempts []model.Attempt) []attemptJSON {
	out := make([]attemptJSON, 0, len(attempts))
	for _, a := range attempts {
		aj := attemptJSON{SQL: a.SQL}
		if a.Error != nil {
			aj.Error = a.Error.Error()
		}
		out = append(out, aj)
	}
	return out
}

func toResultJSON(r model.QueryResult) *resultJSON {
	cols := make([]columnJSON, len(r.Columns))
	for i, c := range r.Columns {
		cols[i] = columnJSON{Name: c.Name, Type: string(c.DataType)}
	}
	rows := r.Rows
	if rows == nil {
		rows = []model.Row{}
	}
	return &resultJSON{
		Columns:   cols,
		Rows:      rows,
		Truncated: r.Truncated,
		RowCount:  r.RowCount,
		ElapsedMS: r.Elapsed.Milliseconds(),
	}
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	result, perr := s.coordinator.Process(r.Context(), req.Question, req.Connection.toModel(), nil)

	w.Header().Set("Content-Type", "application/json")
	if perr != nil {
		status := http.StatusUnprocessableEntity
		if pipeline.IsCancelled(perr) {
			status = 499 // client closed request
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(queryResponse{
			ID:        id,
			Attempts:  attemptsJSON(perr.Attempts),
			ErrorKind: string(perr.Kind),
			Error:     perr.Friendly,
		})
		return
	}

	_ = json.NewEncoder(w).Encode(queryResponse{
		ID:        id,
		SQL:       result.SQL,
		Attempts:  attemptsJSON(result.Attempts),
		Result:    toResultJSON(result.Result),
		Chart:     &result.Chart,
		Process:   result.Process,
		LatencyMS: result.LatencyMS,
	})
}

type describeRequest struct {
	Question string `json:"question"`
	Result   struct {
		Columns   []columnJSON `json:"columns"`
		Rows      []model.Row  `json:"rows"`
		Truncated bool         `json:"truncated"`
		RowCount  int          `json:"row_count"`
	} `json:"result"`
}

// handleDescribe streams the natural-language explanation of an
// already-materialized result as server-sent events: chunk events carry
// text deltas, a final done event closes the stream.
func (s *server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	var req describeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	sendEvent := func(event, data string) {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	result := model.QueryResult{
		Truncated: req.Result.Truncated,
		RowCount:  req.Result.RowCount,
		Rows:      req.Result.Rows,
	}
	for _, c := range req.Result.Columns {
		result.Columns = append(result.Columns, model.ColumnDescriptor{Name: c.Name, DataType: model.SemanticType(c.Type)})
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.llmTimeout)
	defer cancel()

	chunks, err := s.describer.Describe(ctx, result, req.Question)
	if err != nil {
		sendEvent("error", "description unavailable")
		return
	}
	for chunk := range chunks {
		if chunk.Done {
			sendEvent("done", "")
			return
		}
		data, _ := json.Marshal(chunk.Text)
		sendEvent("chunk", string(data))
	}
	// Channel closed without a done marker: the stream broke upstream.
	sendEvent("error", "description stream interrupted")
}

type refreshRequest struct {
	Connection connectionJSON `json:"connection"`
}

// handleRefresh drops the per-connection caches so the next query
// re-introspects and re-trains against the live schema.
func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.coordinator.Invalidate(req.Connection.toModel())
	w.WriteHeader(http.StatusNoContent)
}
