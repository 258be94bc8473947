// internal/app/features/buddies/handler.go
package buddies

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/dalemusser/buddyhub/internal/app/system/ratelimit"
	"github.com/dalemusser/buddyhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Engine is the buddy engine surface exposed over HTTP.
type Engine interface {
	RunCycle(ctx context.Context, groupID string) (buddy.RunReport, error)
	AssignMidCycle(ctx context.Context, memberID, groupID string) (buddy.RepairOutcome, error)
	HandleLeave(ctx context.Context, memberID, groupID string) (buddy.RepairOutcome, error)
	Validate(ctx context.Context, groupID string) (buddy.ValidationReport, error)
}

// Handler serves the buddy admin API.
type Handler struct {
	Engine Engine
	APIKey string
	// Limiter caps requests per client IP. Nil disables rate limiting.
	Limiter *ratelimit.Limiter
	Log     *zap.Logger
}

// NewHandler constructs a buddies Handler. An empty apiKey leaves the API
// unguarded.
func NewHandler(engine Engine, apiKey string, logger *zap.Logger) *Handler {
	return &Handler{
		Engine: engine,
		APIKey: apiKey,
		Log:    logger,
	}
}

// Operation names reported in the response envelope.
const (
	opRunCycle = "run_cycle"
	opValidate = "validate"
)

// envelope is the JSON shape of every buddies response.
type envelope struct {
	Success   bool   `json:"success"`
	Operation string `json:"operation"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

type runRequest struct {
	GroupID string `json:"group_id"`
}

type memberRequest struct {
	MemberID string `json:"member_id"`
}

// ServeRunCycle handles POST /api/buddies/cycles.
//
// The body is optional; {"group_id":"..."} limits the run to one group.
func (h *Handler) ServeRunCycle(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decodeOptional(w, r, opRunCycle, &req) {
		return
	}

	// A run spans many groups; a client hanging up must not stop it midway.
	ctx, cancel := timeouts.WithTimeout(context.WithoutCancel(r.Context()), timeouts.Run(), h.Log, "buddy cycle run")
	defer cancel()

	report, err := h.Engine.RunCycle(ctx, strings.TrimSpace(req.GroupID))
	if err != nil {
		h.fail(w, opRunCycle, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Operation: opRunCycle, Result: report})
}

// ServeJoin handles POST /api/buddies/groups/{groupID}/join.
func (h *Handler) ServeJoin(w http.ResponseWriter, r *http.Request) {
	h.serveRepair(w, r, buddy.OpAssignMidCycle, h.Engine.AssignMidCycle)
}

// ServeLeave handles POST /api/buddies/groups/{groupID}/leave.
func (h *Handler) ServeLeave(w http.ResponseWriter, r *http.Request) {
	h.serveRepair(w, r, buddy.OpHandleLeave, h.Engine.HandleLeave)
}

func (h *Handler) serveRepair(w http.ResponseWriter, r *http.Request, op string,
	repair func(ctx context.Context, memberID, groupID string) (buddy.RepairOutcome, error)) {
	groupID := strings.TrimSpace(chi.URLParam(r, "groupID"))

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Operation: op, Error: "request body must be JSON with member_id"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Repair(), h.Log, "buddy "+op)
	defer cancel()

	out, err := repair(ctx, strings.TrimSpace(req.MemberID), groupID)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Operation: op, Result: out})
}

// ServeValidate handles GET /api/buddies/validate?group_id=...
func (h *Handler) ServeValidate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Run(), h.Log, "buddy validate")
	defer cancel()

	report, err := h.Engine.Validate(ctx, strings.TrimSpace(r.URL.Query().Get("group_id")))
	if err != nil {
		h.fail(w, opValidate, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Operation: opValidate, Result: report})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error("buddy operation failed", zap.String("operation", op), zap.Error(err))
	} else {
		h.Log.Info("buddy operation rejected", zap.String("operation", op), zap.Error(err))
	}
	writeJSON(w, status, envelope{Operation: op, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, buddy.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, buddy.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeOptional decodes a JSON body when one is present. It writes a 400 and
// returns false on malformed JSON.
func decodeOptional(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, envelope{Operation: op, Error: "request body must be JSON"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
