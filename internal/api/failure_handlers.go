package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/store"
)

const (
	defaultFailureLimit = 50
	maxFailureLimit     = 500
	defaultSummaryRange = 24 * time.Hour
	auditTimeout        = 3 * time.Second
)

// FailureHandler exposes read-only views over the stage failure audit log.
type FailureHandler struct {
	repo    store.AuditRepository
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewFailureHandler wires the repository and logger.
func NewFailureHandler(repo store.AuditRepository, logger *zap.Logger) *FailureHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailureHandler{
		repo:    repo,
		timeout: auditTimeout,
		now:     time.Now,
		logger:  logger,
	}
}

// List handles GET /v1/failures?stage=&run_id=&limit=&offset=. It returns
// {"failures": [...]} newest first, 400 for invalid filters, 503 when no
// audit store is configured, or 500 if the repository call fails.
func (h *FailureHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "audit repository unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultFailureLimit, maxFailureLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := store.FailureFilter{
		Stage:  strings.TrimSpace(r.URL.Query().Get("stage")),
		Limit:  limit,
		Offset: offset,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("run_id")); raw != "" {
		runID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid run_id")
			return
		}
		filter.RunID = &runID
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	failures, err := h.repo.ListFailures(ctx, filter)
	if err != nil {
		h.logger.Error("list failures failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list failures")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failures": toFailureDTOs(failures)})
}

// Summary handles GET /v1/failures/summary?since=. since is an RFC 3339 time
// or a Go duration counted back from now; it defaults to the last 24 hours.
func (h *FailureHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "audit repository unavailable")
		return
	}
	since, err := parseSince(r.URL.Query().Get("since"), h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	counts, err := h.repo.SummarizeFailures(ctx, since)
	if err != nil {
		h.logger.Error("summarize failures failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to summarize failures")
		return
	}
	out := make([]outcomeDTO, 0, len(counts))
	for _, c := range counts {
		out = append(out, outcomeDTO{
			Stage:    c.Stage,
			Outcome:  c.Outcome,
			Count:    c.Count,
			LastSeen: c.LastSeen,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"since": since, "outcomes": out})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseSince(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.Add(-defaultSummaryRange), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return time.Time{}, errors.New("invalid since")
	}
	return now.Add(-d), nil
}

func toFailureDTOs(in []store.Failure) []failureDTO {
	out := make([]failureDTO, 0, len(in))
	for _, f := range in {
		out = append(out, failureDTO{
			RunID:      f.RunID.String(),
			Stage:      f.Stage,
			RecordID:   f.RecordID,
			Outcome:    f.Outcome,
			Procedure:  f.Procedure,
			Message:    f.Message,
			OccurredAt: f.OccurredAt,
		})
	}
	return out
}

type failureDTO struct {
	RunID      string    `json:"run_id"`
	Stage      string    `json:"stage"`
	RecordID   string    `json:"record_id"`
	Outcome    string    `json:"outcome"`
	Procedure  int       `json:"procedure,omitempty"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type outcomeDTO struct {
	Stage    string    `json:"stage"`
	Outcome  string    `json:"outcome"`
	Count    int64     `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}
