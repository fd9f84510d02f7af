package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

const (
	// DefaultEndpoint is the public Hugging Face Hub.
	DefaultEndpoint = "https://huggingface.co"
	// DefaultRowsEndpoint is the datasets-server that materializes rows.
	DefaultRowsEndpoint = "https://datasets-server.huggingface.co"

	datasetsAPIPath    = "/api/datasets"
	rowsAPIPath        = "/rows"
	defaultSplit       = "train"
	maxPageSize        = 100
	maxPreviewRows     = 100
	errorBodyLogLimit  = 300
	taskCategoryFilter = "task_categories:%s"
)

// wizard task type -> HF task category tag
var taskCategoryByTaskType = map[string]string{
	"tabular": "tabular-classification",
	"text":    "text-classification",
	"image":   "image-classification",
	"audio":   "audio-classification",
}

// DatasetSummary is one search hit from the Hub dataset listing.
type DatasetSummary struct {
	ID        string   `json:"id"`
	Author    string   `json:"author"`
	Downloads int      `json:"downloads"`
	Likes     int      `json:"likes"`
	Tags      []string `json:"tags"`
}

// DatasetInfo is the detail record for a single dataset.
type DatasetInfo struct {
	ID           string   `json:"id"`
	Author       string   `json:"author"`
	Description  string   `json:"description"`
	Downloads    int      `json:"downloads"`
	Likes        int      `json:"likes"`
	Tags         []string `json:"tags"`
	LastModified string   `json:"lastModified"`
	CardData     struct {
		License string `json:"license"`
	} `json:"cardData"`
}

// Client is a thin REST client for the Hub dataset catalog. A token is
// optional; public datasets work without one. Detail lookups are cached per
// process, so unlike the catalog this type needs its own locking.
type Client struct {
	Endpoint     string
	RowsEndpoint string
	Token        string
	HTTPClient   *http.Client

	cacheMutex sync.Mutex
	infoCache  map[string]DatasetInfo
}

func New(endpoint, token string) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		Endpoint:     strings.TrimRight(endpoint, "/"),
		RowsEndpoint: DefaultRowsEndpoint,
		Token:        token,
		HTTPClient:   &http.Client{},
		infoCache:    map[string]DatasetInfo{},
	}
}

// SearchDatasets queries the Hub sorted by downloads, following the Link
// header cursor until limit results are collected or the pages run out.
func (c *Client) SearchDatasets(ctx context.Context, query, taskCategory string, limit int) ([]DatasetSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	values := url.Values{}
	if strings.TrimSpace(query) != "" {
		values.Set("search", query)
	}
	if strings.TrimSpace(taskCategory) != "" {
		values.Set("filter", fmt.Sprintf(taskCategoryFilter, taskCategory))
	}
	values.Set("sort", "downloads")
	values.Set("direction", "-1")
	values.Set("limit", strconv.Itoa(minInt(limit, maxPageSize)))

	pageURL := c.Endpoint + datasetsAPIPath + "?" + values.Encode()
	collected := make([]DatasetSummary, 0, limit)
	for pageURL != "" && len(collected) < limit {
		page, nextURL, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		collected = append(collected, page...)
		pageURL = nextURL
	}
	if len(collected) > limit {
		collected = collected[:limit]
	}
	return collected, nil
}

// PopularDatasets lists the most-downloaded datasets, optionally narrowed to
// one task category.
func (c *Client) PopularDatasets(ctx context.Context, taskCategory string, limit int) ([]DatasetSummary, error) {
	return c.SearchDatasets(ctx, "", taskCategory, limit)
}

// DatasetInfo fetches the detail record for one dataset id, serving repeat
// lookups from the in-memory cache.
func (c *Client) DatasetInfo(ctx context.Context, datasetID string) (DatasetInfo, error) {
	c.cacheMutex.Lock()
	cached, hit := c.infoCache[datasetID]
	c.cacheMutex.Unlock()
	if hit {
		return cached, nil
	}

	body, _, err := c.get(ctx, c.Endpoint+datasetsAPIPath+"/"+url.PathEscape(datasetID))
	if err != nil {
		return DatasetInfo{}, err
	}

	var info DatasetInfo
	if decodeErr := json.Unmarshal(body, &info); decodeErr != nil {
		return DatasetInfo{}, fmt.Errorf("decode dataset info %s: %w", datasetID, decodeErr)
	}
	if info.ID == "" {
		info.ID = datasetID
	}

	c.cacheMutex.Lock()
	c.infoCache[datasetID] = info
	c.cacheMutex.Unlock()
	return info, nil
}

// RecommendDataset searches by task description and returns the
// most-downloaded hit, or an empty string when nothing matches.
func (c *Client) RecommendDataset(ctx context.Context, description, taskType string) (string, error) {
	results, err := c.SearchDatasets(ctx, description, taskCategoryByTaskType[taskType], 5)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}
	return results[0].ID, nil
}

// TablePreview is a bounded, in-memory view of one dataset split. Cell
// values are rendered as strings regardless of their upstream type.
type TablePreview struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

type rowsResponse struct {
	Features []struct {
		Name string `json:"name"`
	} `json:"features"`
	Rows []struct {
		Row map[string]json.RawMessage `json:"row"`
	} `json:"rows"`
}

// LoadTablePreview materializes the first rows of a dataset split through
// the datasets-server rows API. The API serves at most 100 rows per
// request, so larger maxRows values are clamped.
func (c *Client) LoadTablePreview(ctx context.Context, datasetID, split string, maxRows int) (TablePreview, error) {
	if strings.TrimSpace(datasetID) == "" {
		return TablePreview{}, fmt.Errorf("dataset id is empty")
	}
	if split == "" {
		split = defaultSplit
	}
	if maxRows <= 0 || maxRows > maxPreviewRows {
		maxRows = maxPreviewRows
	}

	values := url.Values{}
	values.Set("dataset", datasetID)
	values.Set("config", "default")
	values.Set("split", split)
	values.Set("offset", "0")
	values.Set("length", strconv.Itoa(maxRows))

	rowsEndpoint := c.RowsEndpoint
	if rowsEndpoint == "" {
		rowsEndpoint = DefaultRowsEndpoint
	}
	body, _, err := c.get(ctx, strings.TrimRight(rowsEndpoint, "/")+rowsAPIPath+"?"+values.Encode())
	if err != nil {
		return TablePreview{}, err
	}

	var decoded rowsResponse
	if decodeErr := json.Unmarshal(body, &decoded); decodeErr != nil {
		return TablePreview{}, fmt.Errorf("decode dataset rows %s: %w", datasetID, decodeErr)
	}

	preview := TablePreview{Columns: make([]string, 0, len(decoded.Features))}
	for _, feature := range decoded.Features {
		preview.Columns = append(preview.Columns, feature.Name)
	}
	for _, entry := range decoded.Rows {
		if len(preview.Rows) == maxRows {
			break
		}
		row := make([]string, len(preview.Columns))
		for columnIndex, column := range preview.Columns {
			row[columnIndex] = renderCell(entry.Row[column])
		}
		preview.Rows = append(preview.Rows, row)
	}
	return preview, nil
}

// renderCell turns one raw JSON cell into display text: strings lose their
// quotes, everything else keeps its compact JSON form.
func renderCell(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) ([]DatasetSummary, string, error) {
	body, header, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, "", err
	}
	var page []DatasetSummary
	if decodeErr := json.Unmarshal(body, &page); decodeErr != nil {
		return nil, "", fmt.Errorf("decode dataset listing: %w", decodeErr)
	}
	return page, nextLinkURL(header.Get("Link")), nil
}

func (c *Client) get(ctx context.Context, requestURL string) ([]byte, http.Header, error) {
	httpRequest, buildErr := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if buildErr != nil {
		return nil, nil, buildErr
	}
	if c.Token != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpResponse, httpErr := c.HTTPClient.Do(httpRequest)
	if httpErr != nil {
		return nil, nil, httpErr
	}
	defer func(closer io.ReadCloser) { _ = closer.Close() }(httpResponse.Body)

	body, readErr := io.ReadAll(httpResponse.Body)
	if readErr != nil {
		return nil, nil, readErr
	}
	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("huggingface http error %d: %s", httpResponse.StatusCode, truncateForLog(string(body), errorBodyLogLimit))
	}
	return body, httpResponse.Header, nil
}

// nextLinkURL extracts the rel="next" target from a Link response header.
func nextLinkURL(linkHeader string) string {
	for _, part := range strings.Split(linkHeader, ",") {
		segments := strings.Split(strings.TrimSpace(part), ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segments[0]), "<>")
		for _, attribute := range segments[1:] {
			if strings.TrimSpace(attribute) == `rel="next"` {
				return target
			}
		}
	}
	return ""
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func truncateForLog(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
