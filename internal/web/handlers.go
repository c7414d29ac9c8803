package web

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hpungsan/clipflow/internal/engine"
	"github.com/hpungsan/clipflow/internal/errors"
	"github.com/hpungsan/clipflow/internal/ops"
	"github.com/hpungsan/clipflow/internal/pipeline"
	"github.com/hpungsan/clipflow/internal/queue"
)

// maxBodyBytes caps POST /transform request bodies.
const maxBodyBytes = 4 << 20

// Handlers contains HTTP route handlers for the local API.
type Handlers struct {
	db      *sql.DB
	engine  *engine.Engine
	log     *zap.Logger
	version string
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Version string        `json:"version"`
	Engine  engine.Status `json:"engine"`
}

// TransformRequest is the body of POST /transform. With Clipboard set, the
// current clipboard text is transformed and written back; Text is ignored.
type TransformRequest struct {
	Text      string `json:"text"`
	Clipboard bool   `json:"clipboard"`
}

// HandleStatus handles GET /status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, StatusResponse{Version: h.version, Engine: h.engine.Status()})
}

// HandleTransform handles POST /transform.
func (h *Handlers) HandleTransform(w http.ResponseWriter, r *http.Request) {
	var body TransformRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		renderError(w, errors.NewInvalidRequest("invalid JSON body: "+err.Error()))
		return
	}

	var (
		res *pipeline.Result
		err error
	)
	if body.Clipboard {
		res, err = h.engine.TransformClipboard(r.Context(), queue.TriggerAPI)
	} else {
		res, err = h.engine.Submit(r.Context(), h.engine.NewRequest(queue.TriggerAPI), body.Text)
	}
	if err != nil {
		renderRunError(w, res, err)
		return
	}

	renderJSON(w, http.StatusOK, res.Summary())
}

// HandleCancel handles POST /cancel.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"cancelled": h.engine.Cancel()})
}

// HandleHistoryList handles GET /history.
func (h *Handlers) HandleHistoryList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := ops.ListRuns(r.Context(), h.db, ops.ListInput{
		Outcome: q.Get("outcome"),
		Trigger: q.Get("trigger"),
		Limit:   parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:  parseIntParam(r, "offset", 0),
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleHistoryFetch handles GET /history/{id}.
func (h *Handlers) HandleHistoryFetch(w http.ResponseWriter, r *http.Request) {
	input := ops.FetchInput{ID: r.PathValue("id")}
	if s := r.URL.Query().Get("include_text"); s != "" {
		include := parseBoolParam(r, "include_text")
		input.IncludeText = &include
	}

	run, err := ops.FetchRun(r.Context(), h.db, input)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, run)
}

// HandleHistoryStats handles GET /history/stats.
func (h *Handlers) HandleHistoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := ops.Stats(r.Context(), h.db)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, stats)
}

// HandleHistoryPurge handles POST /history/purge.
func (h *Handlers) HandleHistoryPurge(w http.ResponseWriter, r *http.Request) {
	var input ops.PurgeInput
	if days := r.URL.Query().Get("older_than_days"); days != "" {
		d, err := strconv.Atoi(days)
		if err != nil {
			renderError(w, errors.NewInvalidRequest("older_than_days must be an integer"))
			return
		}
		input.OlderThanDays = &d
	}

	result, err := ops.PurgeRuns(r.Context(), h.db, input)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// renderJSON writes v as a JSON response with the given status.
func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody builds the JSON error object. INTERNAL errors never expose details.
func errorBody(err error) (int, map[string]any) {
	var cErr *errors.ClipError
	if !stderrors.As(err, &cErr) {
		cErr = errors.NewInternal(err)
	}

	obj := map[string]any{
		"code":      string(cErr.Code),
		"message":   cErr.Message,
		"status":    cErr.Status,
		"retryable": errors.Retryable(cErr),
	}
	if cErr.Code != errors.ErrInternal && cErr.Details != nil {
		obj["details"] = cErr.Details
	}
	return cErr.Status, obj
}

func renderError(w http.ResponseWriter, err error) {
	status, obj := errorBody(err)
	renderJSON(w, status, map[string]any{"error": obj})
}

// renderRunError includes the partial run alongside the error when one exists.
func renderRunError(w http.ResponseWriter, res *pipeline.Result, err error) {
	status, obj := errorBody(err)
	body := map[string]any{"error": obj}
	if res != nil {
		body["result"] = res.Summary()
	}
	renderJSON(w, status, body)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
