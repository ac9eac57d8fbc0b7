package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/inboxkit/kestrel/internal/bus"
	"github.com/inboxkit/kestrel/internal/cache"
	"github.com/inboxkit/kestrel/internal/classify"
	"github.com/inboxkit/kestrel/internal/domain"
	"github.com/inboxkit/kestrel/internal/repository"
	"github.com/inboxkit/kestrel/internal/stats"
)

const testAccount = "acct-001"

// createTestServer creates a server with a sqlite repository, LRU cache
// and channel bus for testing.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lruCache := cache.NewLRUCache(1000)
	t.Cleanup(func() { lruCache.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	registry := classify.NewRegistry(repo, domain.NopSink())
	statsSvc := stats.NewService(repo, lruCache)

	return NewServer(cfg, repo, lruCache, eventBus, registry, statsSvc, "test-v1", time.Minute)
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AccountIDHeader, testAccount)

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func createCategory(t *testing.T, server *Server, req CategoryRequest) domain.Category {
	t.Helper()

	rr := doJSON(t, server, http.MethodPost, "/categories", req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var cat domain.Category
	if err := json.Unmarshal(rr.Body.Bytes(), &cat); err != nil {
		t.Fatalf("failed to parse category: %v", err)
	}
	return cat
}

func workCategoryRequest() CategoryRequest {
	return CategoryRequest{
		Name:  "Work",
		Color: "#1a73e8",
		Logic: domain.LogicAnd,
		Rules: []domain.Rule{
			{Field: domain.FieldFrom, Operator: domain.OpEndsWith, Value: "@acme.com"},
		},
	}
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", resp["status"])
	}
	if resp["version"] != "test-v1" {
		t.Errorf("expected version test-v1, got %s", resp["version"])
	}

	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200 for /ready, got %d", rr.Code)
	}
}

func TestClassifyEndpoint(t *testing.T) {
	server := createTestServer(t)
	createCategory(t, server, workCategoryRequest())

	t.Run("Match", func(t *testing.T) {
		msg := domain.Message{
			ID:      "msg-001",
			From:    domain.String("boss@acme.com"),
			Subject: domain.String("Q3 planning"),
		}

		rr := doJSON(t, server, http.MethodPost, "/classify", msg)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp ClassifyResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if !resp.Matched || resp.CategoryName != "Work" {
			t.Errorf("expected Work match, got %+v", resp)
		}
		if resp.ClassificationID == "" {
			t.Error("expected classificationId in response")
		}
		if resp.Cached {
			t.Error("first classification should not be cached")
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
	})

	t.Run("CachedOnRepeat", func(t *testing.T) {
		msg := domain.Message{
			ID:   "msg-cached",
			From: domain.String("boss@acme.com"),
		}

		rr := doJSON(t, server, http.MethodPost, "/classify", msg)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodPost, "/classify", msg)
		var resp ClassifyResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if !resp.Cached {
			t.Error("expected repeat classification to be served from cache")
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		msg := domain.Message{
			ID:   "msg-002",
			From: domain.String("noreply@other.org"),
		}

		rr := doJSON(t, server, http.MethodPost, "/classify", msg)
		var resp ClassifyResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Matched {
			t.Errorf("expected no match, got %+v", resp)
		}
	})

	t.Run("MissingAccountID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/classify", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/classify", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(AccountIDHeader, testAccount)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestClassifyRawEndpoint(t *testing.T) {
	server := createTestServer(t)
	createCategory(t, server, workCategoryRequest())

	raw := "From: boss@acme.com\r\n" +
		"To: team@acme.com\r\n" +
		"Subject: budget review\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Numbers attached.\r\n"

	req := httptest.NewRequest(http.MethodPost, "/classify/raw", bytes.NewBufferString(raw))
	req.Header.Set("Content-Type", "message/rfc822")
	req.Header.Set(AccountIDHeader, testAccount)

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ClassifyResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if !resp.Matched || resp.CategoryName != "Work" {
		t.Errorf("expected Work match for raw message, got %+v", resp)
	}
}

func TestClassifyBatchEndpoint(t *testing.T) {
	server := createTestServer(t)
	createCategory(t, server, workCategoryRequest())

	req := BatchRequest{
		Messages: []domain.Message{
			{ID: "b-1", From: domain.String("boss@acme.com")},
			{ID: "b-2", From: domain.String("spam@other.org")},
		},
	}

	rr := doJSON(t, server, http.MethodPost, "/classify/batch", req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp BatchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("expected 2 results, got %d", resp.Count)
	}
	if !resp.Results[0].Matched {
		t.Error("expected first message to match")
	}
	if resp.Results[1].Matched {
		t.Error("expected second message not to match")
	}

	t.Run("EmptyBatch", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/classify/batch", BatchRequest{})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestCategoryCRUD(t *testing.T) {
	server := createTestServer(t)

	cat := createCategory(t, server, workCategoryRequest())

	t.Run("List", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/categories", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Categories []domain.Category `json:"categories"`
			Count      int               `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 || resp.Categories[0].Name != "Work" {
			t.Errorf("unexpected list: %+v", resp)
		}
	})

	t.Run("Get", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/categories/"+cat.ID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("Update", func(t *testing.T) {
		update := workCategoryRequest()
		update.Name = "Work Updated"

		rr := doJSON(t, server, http.MethodPut, "/categories/"+cat.ID, update)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodGet, "/categories/"+cat.ID, nil)
		var got domain.Category
		json.Unmarshal(rr.Body.Bytes(), &got)
		if got.Name != "Work Updated" {
			t.Errorf("expected updated name, got %s", got.Name)
		}
	})

	t.Run("InvalidRule", func(t *testing.T) {
		bad := CategoryRequest{
			Name:  "Bad",
			Logic: domain.LogicAnd,
			Rules: []domain.Rule{
				{Field: "bogus", Operator: domain.OpContains, Value: "x"},
			},
		}
		rr := doJSON(t, server, http.MethodPost, "/categories", bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for unknown field, got %d", rr.Code)
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		bad := CategoryRequest{
			Name:       "BadExpr",
			Expression: "subject +",
		}
		rr := doJSON(t, server, http.MethodPost, "/categories", bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for invalid expression, got %d", rr.Code)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodDelete, "/categories/"+cat.ID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodGet, "/categories/"+cat.ID, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 after delete, got %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodDelete, "/categories/"+cat.ID, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 on double delete, got %d", rr.Code)
		}
	})
}

func TestReorderChangesPriority(t *testing.T) {
	server := createTestServer(t)

	// Two categories that both match the same message
	first := createCategory(t, server, CategoryRequest{
		Name:     "Newsletters",
		Logic:    domain.LogicOr,
		Position: 0,
		Rules: []domain.Rule{
			{Field: domain.FieldFrom, Operator: domain.OpContains, Value: "news"},
		},
	})
	second := createCategory(t, server, CategoryRequest{
		Name:     "Important Senders",
		Logic:    domain.LogicOr,
		Position: 1,
		Rules: []domain.Rule{
			{Field: domain.FieldFrom, Operator: domain.OpEndsWith, Value: "@acme.com"},
		},
	})

	msg := domain.Message{ID: "msg-prio", From: domain.String("news@acme.com")}

	rr := doJSON(t, server, http.MethodPost, "/classify", msg)
	var resp ClassifyResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.CategoryName != "Newsletters" {
		t.Fatalf("expected Newsletters to win at position 0, got %s", resp.CategoryName)
	}

	rr = doJSON(t, server, http.MethodPost, "/categories/reorder", ReorderRequest{
		OrderedIDs: []string{second.ID, first.ID},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("reorder failed: %d %s", rr.Code, rr.Body.String())
	}

	// New message identity so the fingerprint cache does not serve the old result
	msg.ID = "msg-prio-2"
	rr = doJSON(t, server, http.MethodPost, "/classify", msg)
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.CategoryName != "Important Senders" {
		t.Errorf("expected Important Senders after reorder, got %s", resp.CategoryName)
	}
}

func TestCategoryQueryEndpoint(t *testing.T) {
	server := createTestServer(t)

	cat := createCategory(t, server, CategoryRequest{
		Name:  "Attachments from boss",
		Logic: domain.LogicAnd,
		Rules: []domain.Rule{
			{Field: domain.FieldFrom, Operator: domain.OpContains, Value: "boss@acme.com"},
			{Field: domain.FieldHasAttachment, Operator: domain.OpIsTrue},
		},
	})

	rr := doJSON(t, server, http.MethodGet, fmt.Sprintf("/categories/%s/query", cat.ID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp QueryResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Query != "from:boss@acme.com has:attachment" {
		t.Errorf("unexpected query %q", resp.Query)
	}
	if !resp.Supported {
		t.Error("expected supported query")
	}

	t.Run("Unsupported", func(t *testing.T) {
		neg := createCategory(t, server, CategoryRequest{
			Name:  "Negations only",
			Logic: domain.LogicAnd,
			Rules: []domain.Rule{
				{Field: domain.FieldFrom, Operator: domain.OpNotContains, Value: "spam"},
			},
		})

		rr := doJSON(t, server, http.MethodGet, fmt.Sprintf("/categories/%s/query", neg.ID), nil)
		var resp QueryResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Supported || resp.Query != "" {
			t.Errorf("expected unsupported empty query, got %+v", resp)
		}
	})
}

func TestStatsEndpoint(t *testing.T) {
	server := createTestServer(t)
	createCategory(t, server, workCategoryRequest())

	// Generate some matches
	for i := 0; i < 3; i++ {
		msg := domain.Message{
			ID:   fmt.Sprintf("stat-msg-%d", i),
			From: domain.String("boss@acme.com"),
		}
		doJSON(t, server, http.MethodPost, "/classify", msg)
	}

	rr := doJSON(t, server, http.MethodGet, "/stats", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Categories []domain.CategoryMatches `json:"categories"`
		Hours      int                      `json:"hours"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Hours != 24 {
		t.Errorf("expected default 24 hour window, got %d", resp.Hours)
	}
	if len(resp.Categories) != 1 || resp.Categories[0].Matches != 3 {
		t.Errorf("unexpected stats: %+v", resp.Categories)
	}

	t.Run("BadWindow", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/stats?hours=-1", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for bad window, got %d", rr.Code)
		}
	})
}

func TestGetClassificationEndpoint(t *testing.T) {
	server := createTestServer(t)
	createCategory(t, server, workCategoryRequest())

	msg := domain.Message{ID: "msg-get", From: domain.String("boss@acme.com")}
	rr := doJSON(t, server, http.MethodPost, "/classify", msg)

	var resp ClassifyResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)

	rr = doJSON(t, server, http.MethodGet, "/classifications/"+resp.ClassificationID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var cl domain.Classification
	json.Unmarshal(rr.Body.Bytes(), &cl)
	if cl.MessageID != "msg-get" || !cl.Matched {
		t.Errorf("unexpected classification: %+v", cl)
	}

	t.Run("NotFound", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/classifications/nope", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}
