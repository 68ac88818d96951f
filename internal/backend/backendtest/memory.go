// Package backendtest provides an in-memory engine for tests.
package backendtest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/MingChen0919/elastic-search/internal/backend"
)

// Memory is an in-memory backend.Client. Documents are stored per index and
// id; queries are not evaluated. Search returns Hits when set, otherwise
// every document of the requested indices, windowed by from/size.
type Memory struct {
	mu sync.Mutex

	docs map[string]map[string]json.RawMessage
	// Hits overrides the hits returned by Search and counted by Count.
	Hits []json.RawMessage
	// Errors injects an error per operation name, e.g. "bulk" or "put".
	Errors map[string]error
	// RejectIDs makes bulk and put fail for these document ids.
	RejectIDs map[string]bool

	calls      []string
	lastSearch []byte
	lastCount  []byte
	nextID     int
}

// NewMemory creates an engine holding the given (empty) indices.
func NewMemory(indices ...string) *Memory {
	m := &Memory{docs: make(map[string]map[string]json.RawMessage)}
	for _, idx := range indices {
		m.docs[idx] = make(map[string]json.RawMessage)
	}
	return m
}

var _ backend.Client = (*Memory)(nil)

// Calls returns the operations performed so far.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times op was performed.
func (m *Memory) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == op {
			n++
		}
	}
	return n
}

// LastSearchBody returns the body of the last search call.
func (m *Memory) LastSearchBody() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSearch
}

// LastCountBody returns the body of the last count call.
func (m *Memory) LastCountBody() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCount
}

// Docs returns the decoded documents of index keyed by id.
func (m *Memory) Docs(index string) map[string]map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]map[string]any, len(m.docs[index]))
	for id, raw := range m.docs[index] {
		var d map[string]any
		_ = json.Unmarshal(raw, &d)
		out[id] = d
	}
	return out
}

// Put stores a document directly.
func (m *Memory) Put(index, id string, doc any) {
	raw, _ := json.Marshal(doc)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index(index)[id] = raw
}

func (m *Memory) index(name string) map[string]json.RawMessage {
	idx, ok := m.docs[name]
	if !ok {
		idx = make(map[string]json.RawMessage)
		m.docs[name] = idx
	}
	return idx
}

func (m *Memory) begin(op string) error {
	m.calls = append(m.calls, op)
	return m.Errors[op]
}

func notFound(what string) error {
	return &backend.HTTPStatusError{StatusCode: http.StatusNotFound, URL: "mem://" + what, Body: `{"error":"not found"}`}
}

func (m *Memory) CreateIndex(_ context.Context, name string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("create_index"); err != nil {
		return err
	}
	if _, ok := m.docs[name]; ok {
		return &backend.HTTPStatusError{StatusCode: http.StatusBadRequest, URL: "mem://" + name,
			Body: `{"error":{"type":"resource_already_exists_exception"}}`}
	}
	m.docs[name] = make(map[string]json.RawMessage)
	return nil
}

func (m *Memory) DeleteIndex(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("delete_index"); err != nil {
		return err
	}
	if _, ok := m.docs[name]; !ok {
		return notFound(name)
	}
	delete(m.docs, name)
	return nil
}

func (m *Memory) IndexExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("index_exists"); err != nil {
		return false, err
	}
	_, ok := m.docs[name]
	return ok, nil
}

// GetMapping reports every field seen in the stored documents as text.
func (m *Memory) GetMapping(_ context.Context, index string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("get_mapping"); err != nil {
		return nil, err
	}
	out := map[string]any{}
	for name, docs := range m.docs {
		if index != "" && name != index {
			continue
		}
		props := map[string]any{}
		for _, raw := range docs {
			var d map[string]any
			_ = json.Unmarshal(raw, &d)
			for f := range d {
				props[f] = map[string]string{"type": "text"}
			}
		}
		out[name] = map[string]any{"mappings": map[string]any{"properties": props}}
	}
	if index != "" && len(out) == 0 {
		return nil, notFound(index)
	}
	return json.Marshal(out)
}

func (m *Memory) GetSettings(_ context.Context, index string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("get_settings"); err != nil {
		return nil, err
	}
	if _, ok := m.docs[index]; !ok {
		return nil, notFound(index)
	}
	return json.RawMessage(fmt.Sprintf(`{%q:{"settings":{"index":{"number_of_shards":"5"}}}}`, index)), nil
}

func (m *Memory) GetDocument(_ context.Context, index, docType, id string) (*backend.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("get"); err != nil {
		return nil, err
	}
	raw, ok := m.docs[index][id]
	if !ok {
		return &backend.Document{Index: index, Type: docType, ID: id}, nil
	}
	return &backend.Document{Index: index, Type: docType, ID: id, Found: true, Source: raw}, nil
}

func (m *Memory) PutDocument(_ context.Context, index, _ string, id string, body []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("put"); err != nil {
		return "", err
	}
	if m.RejectIDs[id] {
		return "", &backend.HTTPStatusError{StatusCode: http.StatusBadRequest, URL: "mem://" + index + "/" + id,
			Body: `{"error":{"type":"mapper_parsing_exception"}}`}
	}
	if id == "" {
		m.nextID++
		id = "auto-" + strconv.Itoa(m.nextID)
	}
	m.index(index)[id] = append(json.RawMessage(nil), body...)
	return id, nil
}

func (m *Memory) DeleteDocument(_ context.Context, index, _ string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("delete"); err != nil {
		return err
	}
	if _, ok := m.docs[index][id]; !ok {
		return notFound(index + "/" + id)
	}
	delete(m.docs[index], id)
	return nil
}

// Bulk applies index and update actions.
func (m *Memory) Bulk(_ context.Context, body []byte) (*backend.BulkResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("bulk"); err != nil {
		return nil, err
	}
	resp := &backend.BulkResponse{}
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var action map[string]struct {
			Index string `json:"_index"`
			ID    string `json:"_id"`
		}
		if err := json.Unmarshal(sc.Bytes(), &action); err != nil {
			return nil, fmt.Errorf("bad action line: %w", err)
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("action without source line")
		}
		src := append([]byte(nil), sc.Bytes()...)
		for op, meta := range action {
			item := backend.BulkItem{Op: op, Index: meta.Index, ID: meta.ID, Status: http.StatusCreated}
			if m.RejectIDs[meta.ID] {
				item.Status, item.Error = http.StatusBadRequest, "mapper_parsing_exception: rejected"
				resp.Errors = true
				resp.Items = append(resp.Items, item)
				continue
			}
			if item.ID == "" {
				m.nextID++
				item.ID = "auto-" + strconv.Itoa(m.nextID)
			}
			if op == "update" {
				var u struct {
					Doc json.RawMessage `json:"doc"`
				}
				_ = json.Unmarshal(src, &u)
				src = u.Doc
			}
			m.index(meta.Index)[item.ID] = src
			resp.Items = append(resp.Items, item)
		}
	}
	return resp, sc.Err()
}

func (m *Memory) hits(indices []string) []json.RawMessage {
	if m.Hits != nil {
		return m.Hits
	}
	var out []json.RawMessage
	for _, idx := range indices {
		ids := make([]string, 0, len(m.docs[idx]))
		for id := range m.docs[idx] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			h, _ := json.Marshal(map[string]any{"_index": idx, "_id": id, "_source": m.docs[idx][id]})
			out = append(out, h)
		}
	}
	return out
}

func (m *Memory) Search(_ context.Context, indices []string, _ string, body []byte) (*backend.SearchResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("search"); err != nil {
		return nil, err
	}
	m.lastSearch = body
	var window struct {
		From int  `json:"from"`
		Size *int `json:"size"`
	}
	_ = json.Unmarshal(body, &window)
	all := m.hits(indices)
	from := min(window.From, len(all))
	to := len(all)
	if window.Size != nil {
		to = min(from+*window.Size, len(all))
	}
	resp := &backend.SearchResponse{}
	resp.Hits.Total = backend.HitsTotal{Value: len(all), Relation: "eq"}
	resp.Hits.Hits = all[from:to]
	return resp, nil
}

func (m *Memory) Count(_ context.Context, indices []string, _ string, body []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("count"); err != nil {
		return 0, err
	}
	m.lastCount = body
	return len(m.hits(indices)), nil
}

// DeleteByQuery removes every document of index.
func (m *Memory) DeleteByQuery(_ context.Context, index, _ string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("delete_by_query"); err != nil {
		return err
	}
	if _, ok := m.docs[index]; !ok {
		return notFound(index)
	}
	m.docs[index] = make(map[string]json.RawMessage)
	return nil
}
