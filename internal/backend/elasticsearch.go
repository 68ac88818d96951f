package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/MingChen0919/elastic-search/internal/domain"
)

// Elasticsearch implements Client over the Elasticsearch/OpenSearch REST API.
type Elasticsearch struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

var _ Client = (*Elasticsearch)(nil)

// NewElasticsearch creates a new engine client. A nil httpClient uses a
// default client.
func NewElasticsearch(baseURL, username, password string, httpClient *http.Client) *Elasticsearch {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Elasticsearch{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   httpClient,
	}
}

func (e *Elasticsearch) Name() string { return "elasticsearch" }

// Ping checks that the engine answers on its root endpoint.
func (e *Elasticsearch) Ping(ctx context.Context) error {
	_, _, err := e.do(ctx, http.MethodGet, "/", nil, "")
	return err
}

func (e *Elasticsearch) CreateIndex(ctx context.Context, name string, body []byte) error {
	if _, _, err := e.do(ctx, http.MethodPut, "/"+url.PathEscape(name), body, "application/json"); err != nil {
		return fmt.Errorf("creating index %s: %w", name, err)
	}
	return nil
}

func (e *Elasticsearch) DeleteIndex(ctx context.Context, name string) error {
	if _, _, err := e.do(ctx, http.MethodDelete, "/"+url.PathEscape(name), nil, ""); err != nil {
		return fmt.Errorf("deleting index %s: %w", name, err)
	}
	return nil
}

func (e *Elasticsearch) IndexExists(ctx context.Context, name string) (bool, error) {
	status, _, err := e.do(ctx, http.MethodHead, "/"+url.PathEscape(name), nil, "")
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking index %s: %w", name, err)
	}
	return true, nil
}

func (e *Elasticsearch) GetMapping(ctx context.Context, index string) (json.RawMessage, error) {
	path := "/_mapping"
	if index != "" {
		path = "/" + url.PathEscape(index) + "/_mapping"
	}
	_, body, err := e.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, fmt.Errorf("getting mapping: %w", err)
	}
	return body, nil
}

func (e *Elasticsearch) GetSettings(ctx context.Context, index string) (json.RawMessage, error) {
	_, body, err := e.do(ctx, http.MethodGet, "/"+url.PathEscape(index)+"/_settings", nil, "")
	if err != nil {
		return nil, fmt.Errorf("getting settings of %s: %w", index, err)
	}
	return body, nil
}

func (e *Elasticsearch) GetDocument(ctx context.Context, index, docType, id string) (*Document, error) {
	status, body, err := e.do(ctx, http.MethodGet, docPath(index, docType, id), nil, "")
	if status == http.StatusNotFound {
		return &Document{Index: index, Type: docType, ID: id, Found: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting document %s/%s: %w", index, id, err)
	}
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding document %s/%s: %w", index, id, err)
	}
	return &doc, nil
}

func (e *Elasticsearch) PutDocument(ctx context.Context, index, docType, id string, body []byte) (string, error) {
	method := http.MethodPut
	if id == "" {
		method = http.MethodPost
	}
	_, respBody, err := e.do(ctx, method, docPath(index, docType, id), body, "application/json")
	if err != nil {
		return "", fmt.Errorf("writing document %s/%s: %w", index, id, err)
	}
	var result struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding write response: %w", err)
	}
	return result.ID, nil
}

func (e *Elasticsearch) DeleteDocument(ctx context.Context, index, docType, id string) error {
	if _, _, err := e.do(ctx, http.MethodDelete, docPath(index, docType, id), nil, ""); err != nil {
		return fmt.Errorf("deleting document %s/%s: %w", index, id, err)
	}
	return nil
}

func (e *Elasticsearch) Bulk(ctx context.Context, body []byte) (*BulkResponse, error) {
	_, respBody, err := e.do(ctx, http.MethodPost, "/_bulk", body, "application/x-ndjson")
	if err != nil {
		return nil, fmt.Errorf("executing bulk request: %w", err)
	}
	resp, err := decodeBulkResponse(respBody)
	if err != nil {
		return nil, fmt.Errorf("decoding bulk response: %w", err)
	}
	if resp.Errors {
		slog.Debug("bulk request had item failures", "items", len(resp.Items))
	}
	return resp, nil
}

func (e *Elasticsearch) Search(ctx context.Context, indices []string, docType string, body []byte) (*SearchResponse, error) {
	_, respBody, err := e.do(ctx, http.MethodPost, endpointPath(indices, docType, "_search"), body, "application/json")
	if err != nil {
		slog.Error("engine search error", "indices", indices, "error", err)
		return nil, fmt.Errorf("executing search request: %w", err)
	}
	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return &result, nil
}

func (e *Elasticsearch) Count(ctx context.Context, indices []string, docType string, body []byte) (int, error) {
	_, respBody, err := e.do(ctx, http.MethodPost, endpointPath(indices, docType, "_count"), body, "application/json")
	if err != nil {
		return 0, fmt.Errorf("executing count request: %w", err)
	}
	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("decoding count response: %w", err)
	}
	return result.Count, nil
}

// DeleteByQuery deletes documents matching the given query from the index.
func (e *Elasticsearch) DeleteByQuery(ctx context.Context, index, docType string, body []byte) error {
	path := endpointPath([]string{index}, docType, "_delete_by_query") + "?conflicts=proceed"
	if _, _, err := e.do(ctx, http.MethodPost, path, body, "application/json"); err != nil {
		return fmt.Errorf("executing delete_by_query: %w", err)
	}
	return nil
}

// do executes a request against path and returns the status and body. Any
// status >= 400 is returned as *HTTPStatusError alongside the status.
// Transport failures are wrapped with ErrEngineUnavailable.
func (e *Elasticsearch) do(ctx context.Context, method, path string, body []byte, contentType string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	reqURL := e.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	e.setAuth(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", domain.ErrEngineUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: reading response of %s %s: %w", domain.ErrEngineUnavailable, method, path, err)
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, respBody, &HTTPStatusError{StatusCode: resp.StatusCode, URL: reqURL, Body: string(respBody)}
	}
	return resp.StatusCode, respBody, nil
}

func (e *Elasticsearch) setAuth(req *http.Request) {
	if e.username != "" {
		req.SetBasicAuth(e.username, e.password)
	}
}

func docPath(index, docType, id string) string {
	if docType == "" {
		docType = DefaultType
	}
	p := "/" + url.PathEscape(index) + "/" + url.PathEscape(docType)
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

func endpointPath(indices []string, docType, endpoint string) string {
	escaped := make([]string, len(indices))
	for i, idx := range indices {
		escaped[i] = url.PathEscape(idx)
	}
	p := "/" + strings.Join(escaped, ",")
	if docType != "" && docType != DefaultType {
		p += "/" + url.PathEscape(docType)
	}
	return p + "/" + endpoint
}

type bulkItemBody struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error"`
}

func decodeBulkResponse(body []byte) (*BulkResponse, error) {
	var raw struct {
		Took   int                       `json:"took"`
		Errors bool                      `json:"errors"`
		Items  []map[string]bulkItemBody `json:"items"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	resp := &BulkResponse{Took: raw.Took, Errors: raw.Errors, Items: make([]BulkItem, 0, len(raw.Items))}
	for _, entry := range raw.Items {
		for op, item := range entry {
			bi := BulkItem{Op: op, Index: item.Index, ID: item.ID, Status: item.Status}
			if len(item.Error) > 0 && string(item.Error) != "null" {
				bi.Error = bulkErrorReason(item.Error)
			}
			resp.Items = append(resp.Items, bi)
		}
	}
	return resp, nil
}

func bulkErrorReason(raw json.RawMessage) string {
	var e struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &e); err != nil || (e.Type == "" && e.Reason == "") {
		return string(raw)
	}
	if e.Type == "" {
		return e.Reason
	}
	return e.Type + ": " + e.Reason
}

// BulkAction is one entry of a bulk body.
type BulkAction struct {
	Op    domain.BulkOperation
	Index string
	Type  string
	ID    string
	Doc   map[string]any
}

// EncodeBulk renders actions in the bulk wire format: an action metadata
// line followed by a source line per action. Update actions wrap the source
// in {"doc": ...}.
func EncodeBulk(actions []BulkAction) ([]byte, error) {
	var buf bytes.Buffer
	for i, a := range actions {
		meta := map[string]string{"_index": a.Index}
		if a.Type != "" {
			meta["_type"] = a.Type
		}
		if a.ID != "" {
			meta["_id"] = a.ID
		}
		line, err := json.Marshal(map[string]any{string(a.Op): meta})
		if err != nil {
			return nil, fmt.Errorf("encoding bulk action %d: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')

		var src any = a.Doc
		if a.Op == domain.OpUpdate {
			src = map[string]any{"doc": a.Doc}
		}
		line, err = json.Marshal(src)
		if err != nil {
			return nil, fmt.Errorf("encoding bulk source %d: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
