package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/modelpick/modelpick/internal/advisor"
	"github.com/modelpick/modelpick/internal/catalog"
	"github.com/modelpick/modelpick/internal/fsops"
	"github.com/modelpick/modelpick/internal/huggingface"
	"github.com/modelpick/modelpick/internal/kaggle"
	"github.com/modelpick/modelpick/internal/server"
	"github.com/modelpick/modelpick/internal/session"
)

type fixedAdvisor struct {
	analysis advisor.TaskAnalysis
	err      error
	prompts  []string
}

func (f *fixedAdvisor) ParseTask(_ context.Context, description string) (advisor.TaskAnalysis, error) {
	f.prompts = append(f.prompts, description)
	return f.analysis, f.err
}

type fixedHub struct {
	results []huggingface.DatasetSummary
	queries []string
}

func (f *fixedHub) SearchDatasets(_ context.Context, query, _ string, _ int) ([]huggingface.DatasetSummary, error) {
	f.queries = append(f.queries, query)
	return f.results, nil
}

type fixedKaggle struct {
	results []kaggle.DatasetSummary
}

func (f *fixedKaggle) SearchDatasets(_ context.Context, _, _ string, _ int) ([]kaggle.DatasetSummary, error) {
	return f.results, nil
}

type testHarness struct {
	echoInstance *echo.Echo
	sessions     *session.Store
	filesystem   fsops.Mem
	taskAdvisor  *fixedAdvisor
	hub          *fixedHub
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	filesystem := fsops.NewMem()
	sessions := session.NewStore(filesystem, "sessions")
	taskAdvisor := &fixedAdvisor{
		analysis: advisor.TaskAnalysis{TaskType: "classification", RecommendedModel: "LogisticRegression"},
	}
	hub := &fixedHub{results: []huggingface.DatasetSummary{{ID: "scikit-learn/iris"}}}

	echoInstance := echo.New()
	server.RegisterRoutes(echoInstance, server.Dependencies{
		Catalog:  catalog.Default(),
		Sessions: sessions,
		Advisor:  taskAdvisor,
		Hub:      hub,
		Kaggle:   &fixedKaggle{},
		Logger:   zap.NewNop(),
	})

	return &testHarness{
		echoInstance: echoInstance,
		sessions:     sessions,
		filesystem:   filesystem,
		taskAdvisor:  taskAdvisor,
		hub:          hub,
	}
}

func (h *testHarness) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		request.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	recorder := httptest.NewRecorder()
	h.echoInstance.ServeHTTP(recorder, request)
	return recorder
}

func (h *testHarness) sessionLog(t *testing.T, sessionID string) string {
	t.Helper()
	logPath, pathErr := h.sessions.LogPath(sessionID)
	if pathErr != nil {
		t.Fatalf("log path: %v", pathErr)
	}
	contents, readErr := h.filesystem.ReadFile(logPath)
	if readErr != nil {
		t.Fatalf("read session log: %v", readErr)
	}
	return string(contents)
}

func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
}

func TestCreateSessionWritesOpeningAuditLine(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodPost, "/api/sessions", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var payload map[string]string
	decodeJSON(t, recorder, &payload)
	sessionID := payload["session_id"]
	if len(sessionID) != 8 {
		t.Fatalf("expected an 8 character session id, got %q", sessionID)
	}

	logContents := harness.sessionLog(t, sessionID)
	if logContents != "NEW SESSION "+sessionID+"\n" {
		t.Fatalf("unexpected session log %q", logContents)
	}
}

func TestListCategories(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodGet, "/api/categories", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	var payload map[string][]string
	decodeJSON(t, recorder, &payload)
	categories := payload["categories"]
	if len(categories) == 0 || categories[0] != "Tabular" {
		t.Fatalf("unexpected categories %v", categories)
	}
}

func TestListSubtasksAuditsTaskType(t *testing.T) {
	harness := newTestHarness(t)
	sessionID, _ := harness.sessions.Create()

	recorder := harness.do(t, http.MethodGet, "/api/categories/Tabular/subtasks?session_id="+sessionID, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	logContents := harness.sessionLog(t, sessionID)
	if !strings.Contains(logContents, "task_type = Tabular") {
		t.Fatalf("missing task_type audit line in %q", logContents)
	}
}

func TestUnknownCategoryReturnsNotFound(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodGet, "/api/categories/Quantum/subtasks", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}

	var payload server.ErrorResponse
	decodeJSON(t, recorder, &payload)
	if !strings.Contains(payload.Message.Reason, "Quantum") {
		t.Fatalf("expected the reason to name the category, got %q", payload.Message.Reason)
	}
}

func TestUnknownSessionReturnsNotFound(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodGet, "/api/categories/Tabular/subtasks?session_id=deadbeef", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown session, got %d", recorder.Code)
	}
}

func TestGetTaskInfoAuditsSubtask(t *testing.T) {
	harness := newTestHarness(t)
	sessionID, _ := harness.sessions.Create()

	recorder := harness.do(t, http.MethodGet, "/api/categories/Tabular/subtasks/classification?session_id="+sessionID, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var info catalog.TaskInfo
	decodeJSON(t, recorder, &info)
	if len(info.Models) == 0 || info.Models[0] != "LogisticRegression" {
		t.Fatalf("unexpected models %v", info.Models)
	}

	logContents := harness.sessionLog(t, sessionID)
	if !strings.Contains(logContents, "subtask = Tabular/classification") {
		t.Fatalf("missing subtask audit line in %q", logContents)
	}
}

func TestListDatasetsFiltersBySource(t *testing.T) {
	testCases := []struct {
		name           string
		target         string
		expectedFirst  string
		expectedLength int
	}{
		{
			name:           "all sources by default",
			target:         "/api/categories/Tabular/subtasks/classification/datasets",
			expectedFirst:  "load_iris",
			expectedLength: 6,
		},
		{
			name:           "kaggle only",
			target:         "/api/categories/Tabular/subtasks/classification/datasets?source=kaggle",
			expectedFirst:  "heptapod/titanic",
			expectedLength: 2,
		},
		{
			name:           "absent source yields empty",
			target:         "/api/categories/Tabular/subtasks/classification/datasets?source=openml",
			expectedLength: 0,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			harness := newTestHarness(t)
			recorder := harness.do(t, http.MethodGet, testCase.target, "")
			if recorder.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
			}

			var payload map[string][]string
			decodeJSON(t, recorder, &payload)
			datasets := payload["datasets"]
			if len(datasets) != testCase.expectedLength {
				t.Fatalf("expected %d datasets, got %v", testCase.expectedLength, datasets)
			}
			if testCase.expectedLength > 0 && datasets[0] != testCase.expectedFirst {
				t.Fatalf("expected first dataset %q, got %q", testCase.expectedFirst, datasets[0])
			}
		})
	}
}

func TestRecommendationsFilterModels(t *testing.T) {
	harness := newTestHarness(t)
	sessionID, _ := harness.sessions.Create()

	body := `{"session_id":"` + sessionID + `","interpretable":true}`
	recorder := harness.do(t, http.MethodPost, "/api/categories/Tabular/recommendations", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var payload map[string]catalog.Recommendation
	decodeJSON(t, recorder, &payload)
	classification, present := payload["classification"]
	if !present {
		t.Fatalf("missing classification entry in %v", payload)
	}
	for _, model := range classification.Models {
		if strings.Contains(model, "Forest") || strings.Contains(model, "Boosting") {
			t.Fatalf("non interpretable model %q survived the filter", model)
		}
	}

	logContents := harness.sessionLog(t, sessionID)
	if !strings.Contains(logContents, "interpretable=true") {
		t.Fatalf("missing criteria audit line in %q", logContents)
	}
}

func TestAnalyzeTask(t *testing.T) {
	harness := newTestHarness(t)
	sessionID, _ := harness.sessions.Create()

	body := `{"session_id":"` + sessionID + `","task":"predict churn from customer records"}`
	recorder := harness.do(t, http.MethodPost, "/api/tasks/analyze", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var analysis advisor.TaskAnalysis
	decodeJSON(t, recorder, &analysis)
	if analysis.RecommendedModel != "LogisticRegression" {
		t.Fatalf("unexpected analysis %+v", analysis)
	}
	if len(harness.taskAdvisor.prompts) != 1 || harness.taskAdvisor.prompts[0] != "predict churn from customer records" {
		t.Fatalf("unexpected advisor prompts %v", harness.taskAdvisor.prompts)
	}

	logContents := harness.sessionLog(t, sessionID)
	if !strings.Contains(logContents, "user_task = predict churn from customer records") {
		t.Fatalf("missing user_task audit line in %q", logContents)
	}
}

func TestAnalyzeTaskRejectsEmptyDescription(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodPost, "/api/tasks/analyze", `{"task":"  "}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestAnalyzeTaskWithoutAdvisorAnswersServiceUnavailable(t *testing.T) {
	filesystem := fsops.NewMem()
	echoInstance := echo.New()
	server.RegisterRoutes(echoInstance, server.Dependencies{
		Catalog:  catalog.Default(),
		Sessions: session.NewStore(filesystem, "sessions"),
		Logger:   zap.NewNop(),
	})

	request := httptest.NewRequest(http.MethodPost, "/api/tasks/analyze", strings.NewReader(`{"task":"anything"}`))
	request.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	recorder := httptest.NewRecorder()
	echoInstance.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", recorder.Code)
	}
}

func TestAnalyzeTaskMapsMalformedReplies(t *testing.T) {
	harness := newTestHarness(t)
	harness.taskAdvisor.err = advisor.ErrMalformedAnalysis
	harness.taskAdvisor.analysis = advisor.TaskAnalysis{}

	recorder := harness.do(t, http.MethodPost, "/api/tasks/analyze", `{"task":"anything"}`)
	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestSearchDatasets(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodGet, "/api/datasets/search?query=iris&source=huggingface", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var payload struct {
		Source  string                       `json:"source"`
		Results []huggingface.DatasetSummary `json:"results"`
	}
	decodeJSON(t, recorder, &payload)
	if payload.Source != "huggingface" || len(payload.Results) != 1 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if harness.hub.queries[0] != "iris" {
		t.Fatalf("unexpected query %q", harness.hub.queries[0])
	}
}

func TestSearchDatasetsValidation(t *testing.T) {
	testCases := []struct {
		name         string
		target       string
		expectedCode int
	}{
		{name: "missing query", target: "/api/datasets/search", expectedCode: http.StatusBadRequest},
		{name: "bad limit", target: "/api/datasets/search?query=iris&limit=zero", expectedCode: http.StatusBadRequest},
		{name: "negative limit", target: "/api/datasets/search?query=iris&limit=-1", expectedCode: http.StatusBadRequest},
		{name: "unknown source", target: "/api/datasets/search?query=iris&source=zenodo", expectedCode: http.StatusBadRequest},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			harness := newTestHarness(t)
			recorder := harness.do(t, http.MethodGet, testCase.target, "")
			if recorder.Code != testCase.expectedCode {
				t.Fatalf("expected %d, got %d", testCase.expectedCode, recorder.Code)
			}
		})
	}
}

func TestSearchDatasetsUnconfiguredSource(t *testing.T) {
	filesystem := fsops.NewMem()
	echoInstance := echo.New()
	server.RegisterRoutes(echoInstance, server.Dependencies{
		Catalog:  catalog.Default(),
		Sessions: session.NewStore(filesystem, "sessions"),
		Logger:   zap.NewNop(),
	})

	request := httptest.NewRequest(http.MethodGet, "/api/datasets/search?query=iris&source=kaggle", nil)
	recorder := httptest.NewRecorder()
	echoInstance.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", recorder.Code)
	}
}

func TestIndexPageServed(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodGet, "/", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "<html") {
		t.Fatalf("expected an HTML document, got %d bytes without a root element", recorder.Body.Len())
	}
}
