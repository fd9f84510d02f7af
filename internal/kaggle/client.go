package kaggle

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/modelpick/modelpick/internal/fsops"
)

const (
	// DefaultEndpoint is the public Kaggle API.
	DefaultEndpoint = "https://www.kaggle.com/api/v1"

	// SortByHotness is the default listing order.
	SortByHotness = "hotness"

	datasetListPath     = "/datasets/list"
	datasetViewFormat   = "/datasets/list/%s/%s"
	datasetDownloadPath = "/datasets/download/%s/%s"
	datasetPageSize     = 20
	errorBodyLogLimit   = 300
	filePermissions     = 0o644
	directoryPerms      = 0o755
)

var (
	ErrMissingCredentials = errors.New("kaggle credentials are not configured")
	ErrMalformedRef       = errors.New("dataset ref must be owner/slug")
	ErrNoCSVFiles         = errors.New("dataset contains no csv files")
)

// Credentials is the username/key pair Kaggle issues per account.
type Credentials struct {
	Username string
	Key      string
}

// DatasetSummary is one hit from the dataset listing.
type DatasetSummary struct {
	Ref           string `json:"ref"`
	Title         string `json:"title"`
	TotalBytes    int64  `json:"totalBytes"`
	VoteCount     int    `json:"voteCount"`
	DownloadCount int    `json:"downloadCount"`
	LastUpdated   string `json:"lastUpdated"`
	URL           string `json:"url"`
}

// DatasetFile is one file inside a dataset, listed without downloading.
type DatasetFile struct {
	Name       string `json:"name"`
	TotalBytes int64  `json:"totalBytes"`
}

// DatasetMetadata is the descriptive envelope the list endpoint wraps
// around a dataset's files.
type DatasetMetadata struct {
	Ref         string        `json:"ref"`
	Title       string        `json:"title"`
	Subtitle    string        `json:"subtitle"`
	Description string        `json:"description"`
	License     string        `json:"licenseName"`
	TotalBytes  int64         `json:"totalBytes"`
	Files       []DatasetFile `json:"datasetFiles"`
}

// TablePreview is a bounded, in-memory view of one CSV file.
type TablePreview struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Client is a REST client for the Kaggle dataset catalog. All requests use
// basic auth; unlike the Hugging Face Hub there is no anonymous access.
type Client struct {
	Endpoint    string
	HTTPClient  *http.Client
	credentials Credentials

	filesystem     fsops.FS
	cacheDirectory string
}

func New(endpoint string, credentials Credentials, filesystem fsops.FS, cacheDirectory string) (*Client, error) {
	if strings.TrimSpace(credentials.Username) == "" || strings.TrimSpace(credentials.Key) == "" {
		return nil, ErrMissingCredentials
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	if strings.TrimSpace(cacheDirectory) == "" {
		cacheDirectory = "datasets_cache"
	}
	return &Client{
		Endpoint:       strings.TrimRight(endpoint, "/"),
		HTTPClient:     &http.Client{},
		credentials:    credentials,
		filesystem:     filesystem,
		cacheDirectory: cacheDirectory,
	}, nil
}

// SearchDatasets queries the listing endpoint, walking the page-numbered
// pagination until limit results are collected or a page comes back empty.
func (c *Client) SearchDatasets(ctx context.Context, query, sortBy string, limit int) ([]DatasetSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	if strings.TrimSpace(sortBy) == "" {
		sortBy = SortByHotness
	}

	collected := make([]DatasetSummary, 0, limit)
	for page := 1; len(collected) < limit; page++ {
		values := url.Values{}
		if strings.TrimSpace(query) != "" {
			values.Set("search", query)
		}
		values.Set("sortBy", sortBy)
		values.Set("page", strconv.Itoa(page))

		body, err := c.get(ctx, c.Endpoint+datasetListPath+"?"+values.Encode())
		if err != nil {
			return nil, err
		}
		var pageResults []DatasetSummary
		if decodeErr := json.Unmarshal(body, &pageResults); decodeErr != nil {
			return nil, fmt.Errorf("decode dataset listing: %w", decodeErr)
		}
		if len(pageResults) == 0 {
			break
		}
		collected = append(collected, pageResults...)
		if len(pageResults) < datasetPageSize {
			break
		}
	}
	if len(collected) > limit {
		collected = collected[:limit]
	}
	return collected, nil
}

// PopularDatasets lists the hottest datasets without a search term.
func (c *Client) PopularDatasets(ctx context.Context, limit int) ([]DatasetSummary, error) {
	return c.SearchDatasets(ctx, "", SortByHotness, limit)
}

// Metadata fetches a dataset's descriptive record: title, description,
// license, total size, and its file list.
func (c *Client) Metadata(ctx context.Context, ref string) (DatasetMetadata, error) {
	owner, slug, err := splitRef(ref)
	if err != nil {
		return DatasetMetadata{}, err
	}

	body, err := c.get(ctx, c.Endpoint+fmt.Sprintf(datasetViewFormat, url.PathEscape(owner), url.PathEscape(slug)))
	if err != nil {
		return DatasetMetadata{}, err
	}
	var metadata DatasetMetadata
	if decodeErr := json.Unmarshal(body, &metadata); decodeErr != nil {
		return DatasetMetadata{}, fmt.Errorf("decode dataset metadata %s: %w", ref, decodeErr)
	}
	if metadata.Ref == "" {
		metadata.Ref = ref
	}
	return metadata, nil
}

// ListFiles returns the file names inside a dataset without downloading it.
func (c *Client) ListFiles(ctx context.Context, ref string) ([]DatasetFile, error) {
	metadata, err := c.Metadata(ctx, ref)
	if err != nil {
		return nil, err
	}
	return metadata.Files, nil
}

// DownloadDataset fetches the dataset archive and extracts it under the
// cache directory (or targetDirectory when given). Returns the directory
// holding the extracted files.
func (c *Client) DownloadDataset(ctx context.Context, ref, targetDirectory string) (string, error) {
	owner, slug, err := splitRef(ref)
	if err != nil {
		return "", err
	}

	archive, err := c.fetchArchive(ctx, owner, slug)
	if err != nil {
		return "", err
	}

	destination := targetDirectory
	if strings.TrimSpace(destination) == "" {
		destination = c.filesystem.Join(c.cacheDirectory, slug)
	}
	if err := c.filesystem.MkdirAll(destination, directoryPerms); err != nil {
		return "", fmt.Errorf("create dataset directory: %w", err)
	}

	for _, entry := range archive.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if strings.Contains(entry.Name, "..") {
			return "", fmt.Errorf("archive entry escapes destination: %s", entry.Name)
		}
		content, readErr := readArchiveEntry(entry)
		if readErr != nil {
			return "", readErr
		}
		entryPath := c.filesystem.Join(destination, entry.Name)
		if err := c.filesystem.MkdirAll(c.filesystem.Join(destination, dirOf(entry.Name)), directoryPerms); err != nil {
			return "", fmt.Errorf("create archive subdirectory: %w", err)
		}
		if err := c.filesystem.WriteFile(entryPath, content, filePermissions); err != nil {
			return "", fmt.Errorf("write archive entry %s: %w", entry.Name, err)
		}
	}
	return destination, nil
}

// LoadCSVPreview downloads the dataset archive and parses the named CSV
// file (or the first CSV when fileName is empty), capped at maxRows records.
func (c *Client) LoadCSVPreview(ctx context.Context, ref, fileName string, maxRows int) (TablePreview, error) {
	owner, slug, err := splitRef(ref)
	if err != nil {
		return TablePreview{}, err
	}
	if maxRows <= 0 {
		maxRows = 1000
	}

	archive, err := c.fetchArchive(ctx, owner, slug)
	if err != nil {
		return TablePreview{}, err
	}

	var chosen *zip.File
	for _, entry := range archive.File {
		if entry.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name), ".csv") {
			continue
		}
		if fileName != "" && entry.Name != fileName {
			continue
		}
		chosen = entry
		break
	}
	if chosen == nil {
		return TablePreview{}, fmt.Errorf("%w: %s", ErrNoCSVFiles, ref)
	}

	content, readErr := readArchiveEntry(chosen)
	if readErr != nil {
		return TablePreview{}, readErr
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1

	header, headerErr := reader.Read()
	if headerErr != nil {
		return TablePreview{}, fmt.Errorf("read csv header %s: %w", chosen.Name, headerErr)
	}

	preview := TablePreview{Columns: header, Rows: [][]string{}}
	for len(preview.Rows) < maxRows {
		record, recordErr := reader.Read()
		if recordErr == io.EOF {
			break
		}
		if recordErr != nil {
			return TablePreview{}, fmt.Errorf("read csv record %s: %w", chosen.Name, recordErr)
		}
		preview.Rows = append(preview.Rows, record)
	}
	return preview, nil
}

func (c *Client) fetchArchive(ctx context.Context, owner, slug string) (*zip.Reader, error) {
	body, err := c.get(ctx, c.Endpoint+fmt.Sprintf(datasetDownloadPath, url.PathEscape(owner), url.PathEscape(slug)))
	if err != nil {
		return nil, err
	}
	archive, zipErr := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if zipErr != nil {
		return nil, fmt.Errorf("open dataset archive %s/%s: %w", owner, slug, zipErr)
	}
	return archive, nil
}

func (c *Client) get(ctx context.Context, requestURL string) ([]byte, error) {
	httpRequest, buildErr := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if buildErr != nil {
		return nil, buildErr
	}
	httpRequest.SetBasicAuth(c.credentials.Username, c.credentials.Key)

	httpResponse, httpErr := c.HTTPClient.Do(httpRequest)
	if httpErr != nil {
		return nil, httpErr
	}
	defer func(closer io.ReadCloser) { _ = closer.Close() }(httpResponse.Body)

	body, readErr := io.ReadAll(httpResponse.Body)
	if readErr != nil {
		return nil, readErr
	}
	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		return nil, fmt.Errorf("kaggle http error %d: %s", httpResponse.StatusCode, truncateForLog(string(body), errorBodyLogLimit))
	}
	return body, nil
}

func readArchiveEntry(entry *zip.File) ([]byte, error) {
	opened, openErr := entry.Open()
	if openErr != nil {
		return nil, fmt.Errorf("open archive entry %s: %w", entry.Name, openErr)
	}
	defer func(closer io.ReadCloser) { _ = closer.Close() }(opened)

	content, readErr := io.ReadAll(opened)
	if readErr != nil {
		return nil, fmt.Errorf("read archive entry %s: %w", entry.Name, readErr)
	}
	return content, nil
}

func splitRef(ref string) (string, string, error) {
	owner, slug, found := strings.Cut(strings.TrimSpace(ref), "/")
	if !found || owner == "" || slug == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedRef, ref)
	}
	return owner, slug, nil
}

func dirOf(name string) string {
	if index := strings.LastIndex(name, "/"); index > 0 {
		return name[:index]
	}
	return "."
}

func truncateForLog(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
