package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inboxkit/kestrel/internal/classify"
	"github.com/inboxkit/kestrel/internal/domain"
	"github.com/inboxkit/kestrel/internal/extract"
	"github.com/inboxkit/kestrel/internal/query"
	"github.com/inboxkit/kestrel/internal/repository"
	"github.com/inboxkit/kestrel/internal/stats"
)

// maxRawMessageSize caps raw MIME payloads accepted by /classify/raw.
const maxRawMessageSize = 10 << 20 // 10MB

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	registry *classify.Registry
	stats    *stats.Service
	sink     domain.DiagnosticSink
	version  string
	ttl      time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, registry *classify.Registry, statsSvc *stats.Service, version string, classificationTTL time.Duration) *Handler {
	if classificationTTL <= 0 {
		classificationTTL = 10 * time.Minute
	}
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		registry: registry,
		stats:    statsSvc,
		sink:     domain.LogSink(),
		version:  version,
		ttl:      classificationTTL,
	}
}

// ClassifyResponse is the response for classification endpoints.
type ClassifyResponse struct {
	ClassificationID string `json:"classificationId"`
	MessageID        string `json:"messageId"`
	Matched          bool   `json:"matched"`
	CategoryID       string `json:"categoryId,omitempty"`
	CategoryName     string `json:"categoryName,omitempty"`
	Color            string `json:"color,omitempty"`
	Cached           bool   `json:"cached"`
	Metadata         struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Classify handles POST /classify requests with a structured message body.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var msg domain.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	h.respondClassified(w, r, &msg)
}

// ClassifyRaw handles POST /classify/raw with a raw RFC 822 payload.
func (h *Handler) ClassifyRaw(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRawMessageSize))
	if err != nil || len(raw) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "message body is required",
		})
		return
	}

	msg, err := extract.FromRaw(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to parse message: " + err.Error(),
		})
		return
	}

	h.respondClassified(w, r, msg)
}

// BatchRequest is the request body for POST /classify/batch.
type BatchRequest struct {
	Messages []domain.Message `json:"messages"`
}

// BatchResponse is the response for POST /classify/batch.
type BatchResponse struct {
	Results []ClassifyResponse `json:"results"`
	Count   int                `json:"count"`
}

// ClassifyBatch handles POST /classify/batch requests.
func (h *Handler) ClassifyBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := GetAccountID(ctx)
	traceID := GetTraceID(ctx)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "messages is required",
		})
		return
	}

	resp := BatchResponse{Results: make([]ClassifyResponse, 0, len(req.Messages))}
	for i := range req.Messages {
		start := time.Now()
		cl, cached, err := h.classifyMessage(ctx, accountID, &req.Messages[i])
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "classification failed",
			})
			return
		}
		resp.Results = append(resp.Results, h.classifyResponse(cl, cached, traceID, start))
	}
	resp.Count = len(resp.Results)

	writeJSON(w, http.StatusOK, resp)
}

// respondClassified runs the classification flow and writes the response.
func (h *Handler) respondClassified(w http.ResponseWriter, r *http.Request, msg *domain.Message) {
	start := time.Now()
	ctx := r.Context()
	accountID := GetAccountID(ctx)
	traceID := GetTraceID(ctx)

	cl, cached, err := h.classifyMessage(ctx, accountID, msg)
	if err != nil {
		slog.Error("classification failed",
			"account_id", accountID,
			"message_id", msg.ID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "classification failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, h.classifyResponse(cl, cached, traceID, start))
}

// classifyMessage evaluates msg against the account's categories, with a
// fingerprint cache in front of the engine.
func (h *Handler) classifyMessage(ctx context.Context, accountID string, msg *domain.Message) (*domain.Classification, bool, error) {
	start := time.Now()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	fp := fingerprint(msg)

	if h.cache != nil {
		cached, err := h.cache.GetClassification(ctx, accountID, fp)
		if err != nil {
			slog.Warn("classification cache read failed", "error", err)
		} else if cached != nil {
			return cached, true, nil
		}
	}

	engine, err := h.registry.ForAccount(ctx, accountID)
	if err != nil {
		return nil, false, err
	}

	matched := engine.Classify(msg)

	cl := &domain.Classification{
		ID:        uuid.New().String(),
		AccountID: accountID,
		MessageID: msg.ID,
		Matched:   matched != nil,
		Timestamp: time.Now().UTC(),
		ProcessMs: time.Since(start).Milliseconds(),
	}
	if matched != nil {
		cl.CategoryID = matched.ID
		cl.CategoryName = matched.Name
		cl.Color = matched.Color
	}

	if h.repo != nil {
		if err := h.repo.SaveClassification(ctx, accountID, cl); err != nil {
			slog.Error("failed to save classification", "error", err)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetClassification(ctx, accountID, fp, cl, h.ttl); err != nil {
			slog.Warn("classification cache write failed", "error", err)
		}
	}

	if h.stats != nil && matched != nil {
		if _, err := h.stats.RecordMatch(ctx, accountID, matched.ID); err != nil {
			slog.Warn("failed to record match", "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(cl)
		if err := h.bus.Publish(ctx, accountID, domain.TopicMessageClassified, payload); err != nil {
			slog.Warn("failed to publish classification", "error", err)
		}
	}

	return cl, false, nil
}

func (h *Handler) classifyResponse(cl *domain.Classification, cached bool, traceID string, start time.Time) ClassifyResponse {
	resp := ClassifyResponse{
		ClassificationID: cl.ID,
		MessageID:        cl.MessageID,
		Matched:          cl.Matched,
		CategoryID:       cl.CategoryID,
		CategoryName:     cl.CategoryName,
		Color:            cl.Color,
		Cached:           cached,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version
	return resp
}

// fingerprint derives a stable cache key from the matchable message fields.
func fingerprint(msg *domain.Message) string {
	data, _ := json.Marshal(msg)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetClassification retrieves a classification by ID.
func (h *Handler) GetClassification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := GetAccountID(ctx)
	clID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	cl, err := h.repo.GetClassification(ctx, accountID, clID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get classification", "id", clID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "classification not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, cl)
}

// CategoryRequest is the request body for creating or updating a category.
type CategoryRequest struct {
	ID         string        `json:"id,omitempty"`
	Name       string        `json:"name"`
	Color      string        `json:"color,omitempty"`
	Rules      []domain.Rule `json:"rules,omitempty"`
	Logic      domain.Logic  `json:"logic,omitempty"`
	Query      string        `json:"query,omitempty"`
	Expression string        `json:"expression,omitempty"`
	Position   int           `json:"position"`
	Enabled    *bool         `json:"enabled,omitempty"`
}

// ListCategories returns the account's categories in priority order.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := GetAccountID(ctx)

	cats, err := h.repo.ListCategories(ctx, accountID)
	if err != nil {
		slog.Error("failed to list categories", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list categories",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"categories": cats,
		"count":      len(cats),
	})
}

// GetCategory retrieves a category by ID.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := GetAccountID(ctx)
	catID := chi.URLParam(r, "id")

	cat, err := h.repo.GetCategory(ctx, accountID, catID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "category not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, cat)
}

// CreateCategory creates a new category.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	h.saveCategory(w, r, "")
}

// UpdateCategory updates an existing category.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	h.saveCategory(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) saveCategory(w http.ResponseWriter, r *http.Request, catID string) {
	ctx := r.Context()
	accountID := GetAccountID(ctx)

	var req CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if catID == "" {
		catID = req.ID
	}
	if catID == "" {
		catID = uuid.New().String()
	}

	logic := req.Logic
	if logic == "" {
		logic = domain.LogicOr
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	cat := &domain.Category{
		ID:         catID,
		Name:       req.Name,
		Color:      req.Color,
		Rules:      req.Rules,
		Logic:      logic,
		Query:      req.Query,
		Expression: req.Expression,
		Position:   req.Position,
		Enabled:    enabled,
	}

	if err := classify.ValidateCategory(cat); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if cat.Expression != "" {
		engine, err := h.registry.ForAccount(ctx, accountID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load account engine",
			})
			return
		}
		if err := engine.ValidateExpression(cat.Expression); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid expression: " + err.Error(),
			})
			return
		}
	}

	if err := h.repo.SaveCategory(ctx, accountID, cat); err != nil {
		slog.Error("failed to save category", "id", cat.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save category",
		})
		return
	}

	h.categoryChanged(ctx, accountID)

	slog.Info("category saved", "id", cat.ID, "name", cat.Name, "account_id", accountID)
	writeJSON(w, http.StatusCreated, cat)
}

// DeleteCategory deletes a category.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := GetAccountID(ctx)
	catID := chi.URLParam(r, "id")

	if err := h.repo.DeleteCategory(ctx, accountID, catID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "category not found",
			})
			return
		}
		slog.Error("failed to delete category", "id", catID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete category",
		})
		return
	}

	h.categoryChanged(ctx, accountID)

	slog.Info("category deleted", "id", catID, "account_id", accountID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "category deleted",
	})
}

// ReorderRequest is the request body for POST /categories/reorder.
type ReorderRequest struct {
	OrderedIDs []string `json:"orderedIds"`
}

// ReorderCategories rewrites the matching priority of categories.
func (h *Handler) ReorderCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := GetAccountID(ctx)

	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.OrderedIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "orderedIds is required",
		})
		return
	}

	if err := h.repo.ReorderCategories(ctx, accountID, req.OrderedIDs); err != nil {
		slog.Error("failed to reorder categories", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reorder categories",
		})
		return
	}

	h.categoryChanged(ctx, accountID)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "categories reordered",
		"count":   len(req.OrderedIDs),
	})
}

// ReloadCategories reloads the account's engine from the repository.
func (h *Handler) ReloadCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := GetAccountID(ctx)

	if err := h.registry.Reload(ctx, accountID); err != nil {
		slog.Error("failed to reload categories", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload categories: " + err.Error(),
		})
		return
	}

	engine, _ := h.registry.ForAccount(ctx, accountID)
	count := 0
	if engine != nil {
		count = engine.Count()
	}

	slog.Info("categories reloaded", "account_id", accountID, "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "categories reloaded",
		"count":   count,
	})
}

// QueryResponse is the response for GET /categories/{id}/query.
type QueryResponse struct {
	CategoryID string `json:"categoryId"`
	Query      string `json:"query"`
	Supported  bool   `json:"supported"`
}

// CategoryQuery compiles a category into a mailbox search query.
// An empty query means the rules have no search-query equivalent.
func (h *Handler) CategoryQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := GetAccountID(ctx)
	catID := chi.URLParam(r, "id")

	cat, err := h.repo.GetCategory(ctx, accountID, catID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "category not found",
		})
		return
	}

	q := query.Compile(cat, h.sink)

	writeJSON(w, http.StatusOK, QueryResponse{
		CategoryID: cat.ID,
		Query:      q,
		Supported:  q != "",
	})
}

// Stats returns per-category match counts.
// The window defaults to 24 hours; override with ?hours=N.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := GetAccountID(ctx)

	if h.stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "stats not available",
		})
		return
	}

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "hours must be a positive integer",
			})
			return
		}
		hours = n
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	snapshot, err := h.stats.Snapshot(ctx, accountID, since)
	if err != nil {
		slog.Error("failed to get stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"categories": snapshot,
		"hours":      hours,
	})
}

// categoryChanged reloads the account's engine and announces the change.
func (h *Handler) categoryChanged(ctx context.Context, accountID string) {
	if err := h.registry.Reload(ctx, accountID); err != nil {
		slog.Error("failed to reload categories after change",
			"account_id", accountID,
			"error", err,
		)
	}
	if h.bus != nil {
		if err := h.bus.Publish(ctx, accountID, domain.TopicCategoryUpdated, []byte(`{}`)); err != nil {
			slog.Warn("failed to publish category update", "error", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
