package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestSearchDatasetsFollowsLinkCursor(t *testing.T) {
	var server *httptest.Server
	requests := 0
	server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		requests++
		writer.Header().Set("Content-Type", "application/json")
		switch request.URL.Query().Get("cursor") {
		case "":
			if request.URL.Query().Get("search") != "sentiment" {
				t.Fatalf("missing search parameter: %s", request.URL.RawQuery)
			}
			writer.Header().Set("Link", fmt.Sprintf(`<%s/api/datasets?cursor=page2>; rel="next"`, server.URL))
			_ = json.NewEncoder(writer).Encode([]DatasetSummary{
				{ID: "imdb", Downloads: 125000},
				{ID: "sst2", Downloads: 90000},
			})
		case "page2":
			_ = json.NewEncoder(writer).Encode([]DatasetSummary{
				{ID: "yelp_polarity", Downloads: 40000},
			})
		default:
			t.Fatalf("unexpected cursor %q", request.URL.Query().Get("cursor"))
		}
	}))
	defer server.Close()

	client := New(server.URL, "")
	results, err := client.SearchDatasets(context.Background(), "sentiment", "", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results across pages, got %d", len(results))
	}
	if results[2].ID != "yelp_polarity" {
		t.Fatalf("unexpected last result %+v", results[2])
	}
	if requests != 2 {
		t.Fatalf("expected 2 page fetches, got %d", requests)
	}
}

func TestSearchDatasetsStopsAtLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.Header().Set("Link", `<http://unreachable.invalid>; rel="next"`)
		_ = json.NewEncoder(writer).Encode([]DatasetSummary{
			{ID: "a"}, {ID: "b"}, {ID: "c"},
		})
	}))
	defer server.Close()

	client := New(server.URL, "")
	results, err := client.SearchDatasets(context.Background(), "q", "", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected trimmed results, got %d", len(results))
	}
}

func TestDatasetInfoCachesLookups(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		requests++
		if request.URL.Path != "/api/datasets/imdb" {
			t.Fatalf("unexpected path %s", request.URL.Path)
		}
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"id":"imdb","description":"Large Movie Review Dataset","downloads":125000,"cardData":{"license":"other"}}`))
	}))
	defer server.Close()

	client := New(server.URL, "")
	for i := 0; i < 3; i++ {
		info, err := client.DatasetInfo(context.Background(), "imdb")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.Description != "Large Movie Review Dataset" || info.CardData.License != "other" {
			t.Fatalf("unexpected info %+v", info)
		}
	}
	if requests != 1 {
		t.Fatalf("expected a single upstream request, got %d", requests)
	}
}

func TestDatasetInfoErrorsAreNotCached(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		requests++
		http.Error(writer, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "")
	for i := 0; i < 2; i++ {
		if _, err := client.DatasetInfo(context.Background(), "missing"); err == nil {
			t.Fatal("expected http error")
		}
	}
	if requests != 2 {
		t.Fatalf("expected errors to bypass the cache, got %d requests", requests)
	}
}

func TestRecommendDataset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Query().Get("filter") != "task_categories:tabular-classification" {
			t.Fatalf("unexpected filter %q", request.URL.Query().Get("filter"))
		}
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode([]DatasetSummary{
			{ID: "scikit-learn/iris", Downloads: 5000},
			{ID: "other/flowers", Downloads: 100},
		})
	}))
	defer server.Close()

	client := New(server.URL, "")
	recommended, err := client.RecommendDataset(context.Background(), "classify iris flowers", "tabular")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recommended != "scikit-learn/iris" {
		t.Fatalf("expected most-downloaded hit, got %q", recommended)
	}
}

func TestRecommendDatasetEmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := New(server.URL, "")
	recommended, err := client.RecommendDataset(context.Background(), "nothing matches", "tabular")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recommended != "" {
		t.Fatalf("expected empty recommendation, got %q", recommended)
	}
}

func TestNextLinkURL(t *testing.T) {
	testCases := []struct {
		name     string
		header   string
		expected string
	}{
		{name: "empty header", header: "", expected: ""},
		{name: "single next", header: `<https://h.co/api/datasets?cursor=abc>; rel="next"`, expected: "https://h.co/api/datasets?cursor=abc"},
		{name: "multiple relations", header: `<https://h.co/a>; rel="prev", <https://h.co/b>; rel="next"`, expected: "https://h.co/b"},
		{name: "no next", header: `<https://h.co/a>; rel="prev"`, expected: ""},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := nextLinkURL(testCase.header); got != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, got)
			}
		})
	}
}

func TestLoadTablePreview(t *testing.T) {
	var capturedQuery string
	rowsServer := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		capturedQuery = request.URL.RawQuery
		payload := map[string]any{
			"features": []any{
				map[string]any{"name": "text"},
				map[string]any{"name": "label"},
			},
			"rows": []any{
				map[string]any{"row": map[string]any{"text": "good movie", "label": 1}},
				map[string]any{"row": map[string]any{"text": "bad movie", "label": 0}},
			},
		}
		if err := json.NewEncoder(writer).Encode(payload); err != nil {
			t.Fatalf("encode rows: %v", err)
		}
	}))
	defer rowsServer.Close()

	client := New("", "")
	client.RowsEndpoint = rowsServer.URL

	preview, err := client.LoadTablePreview(context.Background(), "imdb", "", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	query, parseErr := url.ParseQuery(capturedQuery)
	if parseErr != nil {
		t.Fatalf("parse query: %v", parseErr)
	}
	if query.Get("dataset") != "imdb" || query.Get("split") != "train" || query.Get("length") != "2" {
		t.Fatalf("unexpected rows query %q", capturedQuery)
	}

	if len(preview.Columns) != 2 || preview.Columns[0] != "text" || preview.Columns[1] != "label" {
		t.Fatalf("unexpected columns %v", preview.Columns)
	}
	if len(preview.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %v", preview.Rows)
	}
	if preview.Rows[0][0] != "good movie" || preview.Rows[0][1] != "1" {
		t.Fatalf("unexpected first row %v", preview.Rows[0])
	}
}

func TestLoadTablePreviewClampsRowBudget(t *testing.T) {
	rowsServer := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if length := request.URL.Query().Get("length"); length != "100" {
			t.Fatalf("expected length clamped to 100, got %q", length)
		}
		if err := json.NewEncoder(writer).Encode(map[string]any{"features": []any{}, "rows": []any{}}); err != nil {
			t.Fatalf("encode rows: %v", err)
		}
	}))
	defer rowsServer.Close()

	client := New("", "")
	client.RowsEndpoint = rowsServer.URL

	if _, err := client.LoadTablePreview(context.Background(), "imdb", "test", 5000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.LoadTablePreview(context.Background(), " ", "train", 10); err == nil {
		t.Fatal("expected an error for an empty dataset id")
	}
}
