package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ivoronin/dupescan/internal/types"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// fakeBackend serves fixed records and records delete calls.
type fakeBackend struct {
	clusters  []types.ClusterSummary
	records   map[string]*types.FileRecord
	deleteErr error
	deleted   []string
	gotLimit  int
	gotOffset int
}

func (f *fakeBackend) Clusters(_ context.Context, limit, offset int) ([]types.ClusterSummary, error) {
	f.gotLimit, f.gotOffset = limit, offset
	end := min(offset+limit, len(f.clusters))
	if offset >= end {
		return nil, nil
	}
	return f.clusters[offset:end], nil
}

func (f *fakeBackend) ClusterMembers(_ context.Context, hash string, size int64) iter.Seq2[*types.FileRecord, error] {
	return func(yield func(*types.FileRecord, error) bool) {
		for _, r := range f.records {
			if r.HashString() == hash {
				if s, _ := r.SizeValue(); s == size && !yield(r, nil) {
					return
				}
			}
		}
	}
}

func (f *fakeBackend) Lookup(_ context.Context, path string) (*types.FileRecord, error) {
	if r, ok := f.records[path]; ok {
		return r, nil
	}
	return nil, types.ErrNotIndexed
}

func (f *fakeBackend) Delete(_ context.Context, path string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, path)
	return nil
}

func newTestServer(t *testing.T, b *fakeBackend) *httptest.Server {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	srv := httptest.NewServer(New(b, log).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, body
}

func record(name string, size int64, hash string) *types.FileRecord {
	return &types.FileRecord{
		FullName:      name,
		Size:          types.Int64(size),
		Hash:          types.String(hash),
		ScanRoot:      filepath.Dir(name),
		AbsolutePath:  name,
		CanonicalPath: name,
	}
}

// =============================================================================
// Section 1: Clusters
// =============================================================================

func TestClustersPagination(t *testing.T) {
	b := &fakeBackend{clusters: []types.ClusterSummary{
		{Hash: "h1", Size: 10, Count: 3},
		{Hash: "h2", Size: 20, Count: 2},
		{Hash: "h3", Size: 30, Count: 2},
	}}
	srv := newTestServer(t, b)

	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
		wantHashes []string
		wantNext   string
	}{
		{"", 50, 0, []string{"h1", "h2", "h3"}, ""},
		{"?page=1&page_size=2", 2, 0, []string{"h1", "h2"}, "/clusters?page=2&page_size=2"},
		{"?page=2&page_size=2", 2, 2, []string{"h3"}, ""},
		{"?page=3&page_size=2", 2, 4, []string{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, body := do(t, http.MethodGet, srv.URL+"/clusters"+tt.query)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, body %s", resp.StatusCode, body)
			}
			if b.gotLimit != tt.wantLimit || b.gotOffset != tt.wantOffset {
				t.Errorf("limit/offset = %d/%d, want %d/%d", b.gotLimit, b.gotOffset, tt.wantLimit, tt.wantOffset)
			}

			var page clusterPage
			if err := json.Unmarshal(body, &page); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			hashes := []string{}
			for _, c := range page.Embedded.Clusters {
				hashes = append(hashes, c.Hash)
				if c.Links["self"].Href != clusterHref(c.Hash, c.Size) {
					t.Errorf("cluster self = %q", c.Links["self"].Href)
				}
			}
			if strings.Join(hashes, ",") != strings.Join(tt.wantHashes, ",") {
				t.Errorf("clusters = %v, want %v", hashes, tt.wantHashes)
			}
			if page.Links["next"].Href != tt.wantNext {
				t.Errorf("next = %q, want %q", page.Links["next"].Href, tt.wantNext)
			}
			if page.Links["self"].Href == "" {
				t.Error("missing self link")
			}
		})
	}
}

func TestClustersBadParams(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{})

	for _, q := range []string{"?page=0", "?page=x", "?page_size=0", "?page_size=100000"} {
		t.Run(q, func(t *testing.T) {
			if resp, _ := do(t, http.MethodGet, srv.URL+"/clusters"+q); resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestClusterMembers(t *testing.T) {
	b := &fakeBackend{records: map[string]*types.FileRecord{
		"/d/1/a": record("/d/1/a", 10, "h1"),
		"/d/2/a": record("/d/2/a", 10, "h1"),
		"/d/3/b": record("/d/3/b", 10, "h2"),
	}}
	srv := newTestServer(t, b)

	resp, body := do(t, http.MethodGet, srv.URL+"/clusters/h1/10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var detail struct {
		Hash     string `json:"hash"`
		Size     int64  `json:"size"`
		Embedded struct {
			Files []struct {
				FullName string `json:"full_name"`
			} `json:"files"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &detail); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if detail.Hash != "h1" || detail.Size != 10 || len(detail.Embedded.Files) != 2 {
		t.Errorf("detail = %+v", detail)
	}

	if resp, _ := do(t, http.MethodGet, srv.URL+"/clusters/h1/11"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown cluster status = %d, want 404", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/clusters/h1/ten"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad size status = %d, want 400", resp.StatusCode)
	}
}

// =============================================================================
// Section 2: Files
// =============================================================================

func TestGetFile(t *testing.T) {
	b := &fakeBackend{records: map[string]*types.FileRecord{
		"/d/1/a":  record("/d/1/a", 10, "h1"),
		"rel/b.x": record("rel/b.x", 5, "h2"),
	}}
	srv := newTestServer(t, b)

	tests := []struct {
		path       string
		wantStatus int
		wantName   string
	}{
		{"/files/d/1/a", http.StatusOK, "/d/1/a"},
		{"/files/rel/b.x", http.StatusOK, "rel/b.x"},
		{"/files/d/1/missing", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := do(t, http.MethodGet, srv.URL+tt.path)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.wantStatus, body)
			}
			if tt.wantName == "" {
				return
			}
			var got map[string]any
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got["full_name"] != tt.wantName {
				t.Errorf("full_name = %v, want %q", got["full_name"], tt.wantName)
			}
		})
	}
}

func TestDeleteFileStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		deleteErr  error
		wantStatus int
	}{
		{"deleted", "/files/d/1/a", nil, http.StatusNoContent},
		{"not indexed", "/files/d/9/z", nil, http.StatusNotFound},
		{"last copy", "/files/d/1/a", &types.NoDuplicateError{Path: "/d/1/a"}, http.StatusConflict},
		{"drift", "/files/d/1/a", &types.IndexInconsistencyError{Path: "/d/2/a"}, http.StatusInternalServerError},
		{"other", "/files/d/1/a", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{
				records:   map[string]*types.FileRecord{"/d/1/a": record("/d/1/a", 10, "h1")},
				deleteErr: tt.deleteErr,
			}
			srv := newTestServer(t, b)

			resp, body := do(t, http.MethodDelete, srv.URL+tt.path)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tt.wantStatus, body)
			}
			if tt.wantStatus == http.StatusNoContent && (len(b.deleted) != 1 || b.deleted[0] != "/d/1/a") {
				t.Errorf("deleted = %v, want [/d/1/a]", b.deleted)
			}
		})
	}
}

func TestStaticServesIndexedFilesOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	b := &fakeBackend{records: map[string]*types.FileRecord{path: record(path, 5, "h")}}
	srv := newTestServer(t, b)

	resp, body := do(t, http.MethodGet, srv.URL+"/static"+path)
	if resp.StatusCode != http.StatusOK || string(body) != "hello" {
		t.Errorf("status = %d, body = %q", resp.StatusCode, body)
	}

	other := filepath.Join(dir, "other.txt")
	if err := os.WriteFile(other, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/static"+other); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unindexed file status = %d, want 404", resp.StatusCode)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/static"+path); resp.StatusCode != http.StatusNotFound {
		t.Errorf("vanished file status = %d, want 404", resp.StatusCode)
	}
}

// =============================================================================
// Section 3: Lifecycle
// =============================================================================

func TestStartStopsOnCancel(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	s := New(&fakeBackend{}, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0") }()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start() error = %v, want nil", err)
	}
}
