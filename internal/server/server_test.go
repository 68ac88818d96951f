package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MingChen0919/elastic-search/internal/backend"
	"github.com/MingChen0919/elastic-search/internal/backend/backendtest"
	"github.com/MingChen0919/elastic-search/internal/dispatch"
	"github.com/MingChen0919/elastic-search/internal/domain"
	"github.com/MingChen0919/elastic-search/internal/gateway"
	"github.com/MingChen0919/elastic-search/internal/indexer"
)

type fakeDispatcher struct {
	specs []indexer.Spec
	err   error
}

func (f *fakeDispatcher) Submit(_ context.Context, spec indexer.Spec) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.specs = append(f.specs, spec)
	return fmt.Sprintf("job-%d", len(f.specs)), nil
}

type fakeLister struct{}

func (fakeLister) NodeTypes(context.Context) ([]string, error)    { return []string{"page"}, nil }
func (fakeLister) BundleLabels(context.Context) ([]string, error) { return []string{"Gene"}, nil }

func newTestServer(t *testing.T, mem *backendtest.Memory, jobs *fakeDispatcher) *httptest.Server {
	t.Helper()
	var d dispatch.Dispatcher
	if jobs != nil {
		d = jobs
	}
	srv := httptest.NewServer(New(gateway.New(mem), fakeLister{}, d, 10))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("GET %s: decoding %q: %v", path, raw, err)
	}
	return resp.StatusCode, body
}

func genesMemory(n int) *backendtest.Memory {
	mem := backendtest.NewMemory()
	for i := 1; i <= n; i++ {
		mem.Put("genes", fmt.Sprintf("%03d", i), map[string]any{"uniquename": fmt.Sprintf("g%d", i), "organism": "Citrus"})
	}
	return mem
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, backendtest.NewMemory(), nil)
	status, body := get(t, srv, "/health")
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", status, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, backendtest.NewMemory(), nil)
	get(t, srv, "/health")

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "esgate_http_requests_total") {
		t.Fatalf("metrics output lacks esgate_http_requests_total")
	}
}

func TestSearchTable_Paginates(t *testing.T) {
	mem := genesMemory(25)
	srv := newTestServer(t, mem, nil)

	status, body := get(t, srv, "/indices/genes/search?organism=Citrus&order=uniquename&sort=desc&page=3&per_page=10")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if body["total"] != float64(25) || body["page"] != float64(3) || body["pages"] != float64(3) {
		t.Fatalf("page = %v", body)
	}
	if n := len(body["results"].([]any)); n != 5 {
		t.Fatalf("results on last page = %d, want 5", n)
	}

	var sent map[string]any
	if err := json.Unmarshal(mem.LastSearchBody(), &sent); err != nil {
		t.Fatal(err)
	}
	if sent["from"] != float64(20) || sent["size"] != float64(10) {
		t.Fatalf("window from=%v size=%v", sent["from"], sent["size"])
	}
	if !strings.Contains(string(mem.LastSearchBody()), `"uniquename.raw"`) {
		t.Fatalf("sort not rendered: %s", mem.LastSearchBody())
	}
	if !strings.Contains(string(mem.LastSearchBody()), "Citrus") {
		t.Fatalf("criterion not rendered: %s", mem.LastSearchBody())
	}
}

func TestSearchTable_PageClampsToLast(t *testing.T) {
	srv := newTestServer(t, genesMemory(3), nil)
	_, body := get(t, srv, "/indices/genes/search?page=99")
	if body["page"] != float64(1) {
		t.Fatalf("page = %v, want 1", body["page"])
	}
}

func TestSearchTable_BadPage(t *testing.T) {
	srv := newTestServer(t, genesMemory(3), nil)
	status, body := get(t, srv, "/indices/genes/search?page=two")
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (%v)", status, body)
	}
	for _, perPage := range []string{"0", "10001", "20000"} {
		status, _ = get(t, srv, "/indices/genes/search?per_page="+perPage)
		if status != http.StatusBadRequest {
			t.Fatalf("per_page=%s status = %d, want 400", perPage, status)
		}
	}
	status, _ = get(t, srv, "/indices/genes/search?per_page=10000")
	if status != http.StatusOK {
		t.Fatalf("per_page=10000 status = %d, want 200", status)
	}
}

func TestSearchWeb_PerPageTooLarge(t *testing.T) {
	srv := newTestServer(t, backendtest.NewMemory("website"), nil)
	status, body := get(t, srv, "/search?terms=kinase&per_page=20000")
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (%v)", status, body)
	}
}

func TestCountTable(t *testing.T) {
	mem := genesMemory(7)
	srv := newTestServer(t, mem, nil)

	status, body := get(t, srv, "/indices/genes/count?organism=Citrus&highlight=organism")
	if status != http.StatusOK || body["count"] != float64(7) {
		t.Fatalf("count = %d %v", status, body)
	}
	if strings.Contains(string(mem.LastCountBody()), "highlight") {
		t.Fatalf("count body carries highlight: %s", mem.LastCountBody())
	}
}

func TestSearchWeb(t *testing.T) {
	mem := backendtest.NewMemory("website")
	mem.Hits = []json.RawMessage{
		json.RawMessage(`{"_source":{"title":"a"},"highlight":{"content":["<em><b>x</b></em>"]}}`),
		json.RawMessage(`{"_source":{"title":"b"}}`),
	}
	srv := newTestServer(t, mem, nil)

	status, body := get(t, srv, "/search?terms=kinase&category=page")
	if status != http.StatusOK {
		t.Fatalf("status = %d %v", status, body)
	}
	results := body["results"].([]any)
	if len(results) != 2 || results[0].(map[string]any)["highlight"] != "<em><b>x</b></em>" {
		t.Fatalf("results = %v", results)
	}
	if !strings.Contains(string(mem.LastSearchBody()), `"type"`) {
		t.Fatalf("category filter not on type: %s", mem.LastSearchBody())
	}
}

func TestSearchWeb_NoWebIndices(t *testing.T) {
	srv := newTestServer(t, backendtest.NewMemory("genes"), nil)
	status, _ := get(t, srv, "/search?terms=kinase")
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestSearchSummary(t *testing.T) {
	mem := backendtest.NewMemory("website", "entities")
	for i := 0; i < 4; i++ {
		mem.Hits = append(mem.Hits, json.RawMessage(fmt.Sprintf(`{"_source":{"n":%d}}`, i)))
	}
	srv := newTestServer(t, mem, nil)

	_, body := get(t, srv, "/search/summary?terms=x&size=2")
	if body["count"] != float64(4) || len(body["results"].([]any)) != 2 {
		t.Fatalf("summary = %v", body)
	}
}

func TestEngineUnavailableIsBadGateway(t *testing.T) {
	mem := genesMemory(1)
	mem.Errors = map[string]error{"count": &backend.HTTPStatusError{StatusCode: http.StatusServiceUnavailable, URL: "mem://genes"}}
	srv := newTestServer(t, mem, nil)

	status, body := get(t, srv, "/indices/genes/count")
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 (%v)", status, body)
	}
}

func TestIntrospection(t *testing.T) {
	mem := genesMemory(2)
	mem.Put("website", "1", map[string]any{"title": "t"})
	mem.Put(".esgate-state", "x", map[string]any{"k": "v"})
	srv := newTestServer(t, mem, nil)

	_, body := get(t, srv, "/indices")
	if got := fmt.Sprint(body["indices"]); got != "[genes website]" {
		t.Fatalf("indices = %s", got)
	}
	_, body = get(t, srv, "/indices?pattern=gen*")
	if got := fmt.Sprint(body["indices"]); got != "[genes]" {
		t.Fatalf("indices matching gen* = %s", got)
	}
	_, body = get(t, srv, "/indices/genes/fields")
	if got := fmt.Sprint(body["fields"]); got != "[organism uniquename]" {
		t.Fatalf("fields = %s", got)
	}
	status, _ := get(t, srv, "/indices/genes/mappings")
	if status != http.StatusOK {
		t.Fatalf("mappings status = %d", status)
	}
	status, _ = get(t, srv, "/indices/missing/settings")
	if status != http.StatusNotFound {
		t.Fatalf("settings of missing index = %d, want 404", status)
	}
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t, backendtest.NewMemory("website", "entities"), nil)
	_, body := get(t, srv, "/categories")
	if got := fmt.Sprint(body["categories"]); got != "[Gene page]" {
		t.Fatalf("categories = %s", got)
	}
	_, body = get(t, srv, "/categories?version=3")
	if got := fmt.Sprint(body["categories"]); got != "[Gene]" {
		t.Fatalf("categories v3 = %s", got)
	}
}

func TestGetDocument(t *testing.T) {
	srv := newTestServer(t, genesMemory(1), nil)

	status, body := get(t, srv, "/indices/genes/documents/001")
	if status != http.StatusOK || body["found"] != true {
		t.Fatalf("document = %d %v", status, body)
	}
	status, body = get(t, srv, "/indices/genes/documents/404")
	if status != http.StatusNotFound || body["found"] != false {
		t.Fatalf("missing document = %d %v", status, body)
	}
}

func postJob(t *testing.T, srv *httptest.Server, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/jobs", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestSubmitJob(t *testing.T) {
	jobs := &fakeDispatcher{}
	srv := newTestServer(t, backendtest.NewMemory(), jobs)

	status, body := postJob(t, srv, `{"partition":"chado_bio_data_1","version":3,"entity_id":"42"}`)
	if status != http.StatusAccepted || body["id"] != "job-1" {
		t.Fatalf("submit = %d %v", status, body)
	}
	want := indexer.Spec{Partition: "chado_bio_data_1", Version: 3, EntityID: "42"}
	if len(jobs.specs) != 1 || jobs.specs[0] != want {
		t.Fatalf("submitted = %+v", jobs.specs)
	}
}

func TestSubmitJob_Rejected(t *testing.T) {
	jobs := &fakeDispatcher{}
	srv := newTestServer(t, backendtest.NewMemory(), jobs)

	for _, body := range []string{
		`not json`,
		`{"partition":"chado_bio_data_1; DROP TABLE x","version":3}`,
		`{"partition":"chado_bio_data_1","version":3,"entity_id":"abc"}`,
		`{"partition":"chado_feature","version":4}`,
		`{"partition":"chado_bio_data_1","version":3,"key_after":4,"key_through":2}`,
	} {
		if status, _ := postJob(t, srv, body); status != http.StatusBadRequest {
			t.Errorf("POST %s = %d, want 400", body, status)
		}
	}
	if len(jobs.specs) != 0 {
		t.Fatalf("rejected jobs were submitted: %+v", jobs.specs)
	}
}

func TestSubmitJob_KeyWindow(t *testing.T) {
	jobs := &fakeDispatcher{}
	srv := newTestServer(t, backendtest.NewMemory(), jobs)

	status, body := postJob(t, srv, `{"partition":"chado_bio_data_1","version":3,"key_after":2,"key_through":4}`)
	if status != http.StatusAccepted {
		t.Fatalf("submit = %d %v", status, body)
	}
	if len(jobs.specs) != 1 || jobs.specs[0].Key() != "chado_bio_data_1-2-4" {
		t.Fatalf("submitted = %+v", jobs.specs)
	}
}

func TestSubmitJob_Disabled(t *testing.T) {
	srv := newTestServer(t, backendtest.NewMemory(), nil)
	if status, _ := postJob(t, srv, `{"partition":"chado_feature","version":2}`); status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.StateError("x"), http.StatusInternalServerError},
		{domain.ConfigurationError("x"), http.StatusBadRequest},
		{domain.InputRejected("x"), http.StatusBadRequest},
		{fmt.Errorf("get: %w", domain.ErrNotFound), http.StatusNotFound},
		{&backend.HTTPStatusError{StatusCode: http.StatusGatewayTimeout}, http.StatusBadGateway},
		{&backend.HTTPStatusError{StatusCode: http.StatusBadRequest}, http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
