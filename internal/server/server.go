// Package server exposes an index over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ivoronin/dupescan/internal/report"
	"github.com/ivoronin/dupescan/internal/types"
	"github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
	shutdownTimeout = 5 * time.Second
)

// Backend answers the queries the server exposes.
type Backend interface {
	Clusters(ctx context.Context, limit, offset int) ([]types.ClusterSummary, error)
	ClusterMembers(ctx context.Context, hash string, size int64) iter.Seq2[*types.FileRecord, error]
	Lookup(ctx context.Context, path string) (*types.FileRecord, error)
	Delete(ctx context.Context, path string) error
}

// Server wires HTTP handlers to a Backend.
type Server struct {
	backend Backend
	log     logrus.FieldLogger
}

// New creates a Server.
func New(backend Backend, log logrus.FieldLogger) *Server {
	return &Server{backend: backend, log: log}
}

// Routes returns the HTTP handler that exposes the application endpoints.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /clusters", s.handleClusters)
	mux.HandleFunc("GET /clusters/{hash}/{size}", s.handleCluster)
	mux.HandleFunc("GET /files/{path...}", s.handleGetFile)
	mux.HandleFunc("DELETE /files/{path...}", s.handleDeleteFile)
	mux.HandleFunc("GET /static/{path...}", s.handleStatic)
	return mux
}

// Start runs the HTTP server until the provided context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()
	s.log.WithField("addr", addr).Info("listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// -----------------------------------------------------------------------------
// Wire types (HAL)
// -----------------------------------------------------------------------------

type link struct {
	Href string `json:"href"`
}

type links map[string]link

type clusterItem struct {
	Links links  `json:"_links"`
	Hash  string `json:"hash"`
	Size  int64  `json:"size"`
	Count int    `json:"count"`
}

type clusterPage struct {
	Links    links `json:"_links"`
	Embedded struct {
		Clusters []clusterItem `json:"clusters"`
	} `json:"_embedded"`
}

type clusterDetail struct {
	Links    links  `json:"_links"`
	Hash     string `json:"hash"`
	Size     int64  `json:"size"`
	Embedded struct {
		Files []any `json:"files"`
	} `json:"_embedded"`
}

func clusterHref(hash string, size int64) string {
	return "/clusters/" + url.PathEscape(hash) + "/" + strconv.FormatInt(size, 10)
}

func pageHref(page, pageSize int) string {
	return fmt.Sprintf("/clusters?page=%d&page_size=%d", page, pageSize)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q, "page", 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	pageSize, err := intParam(q, "page_size", defaultPageSize)
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		writeError(w, http.StatusBadRequest, "invalid page_size")
		return
	}

	clusters, err := s.backend.Clusters(r.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var body clusterPage
	body.Links = links{"self": {Href: pageHref(page, pageSize)}}
	if len(clusters) == pageSize {
		body.Links["next"] = link{Href: pageHref(page+1, pageSize)}
	}
	body.Embedded.Clusters = make([]clusterItem, 0, len(clusters))
	for _, c := range clusters {
		body.Embedded.Clusters = append(body.Embedded.Clusters, clusterItem{
			Links: links{"self": {Href: clusterHref(c.Hash, c.Size)}},
			Hash:  c.Hash,
			Size:  c.Size,
			Count: c.Count,
		})
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	size, err := strconv.ParseInt(r.PathValue("size"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid size")
		return
	}

	body := clusterDetail{Links: links{"self": {Href: clusterHref(hash, size)}}, Hash: hash, Size: size}
	body.Embedded.Files = []any{}
	for rec, err := range s.backend.ClusterMembers(r.Context(), hash, size) {
		if err != nil {
			s.fail(w, r, err)
			return
		}
		body.Embedded.Files = append(body.Embedded.Files, report.NewJSONRecord(rec))
	}
	if len(body.Embedded.Files) == 0 {
		writeError(w, http.StatusNotFound, "no such cluster")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.lookup(r.Context(), r.PathValue("path"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report.NewJSONRecord(rec))
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.lookup(r.Context(), r.PathValue("path"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.backend.Delete(r.Context(), rec.FullName); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	rec, err := s.lookup(r.Context(), r.PathValue("path"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	f, err := os.Open(rec.AbsolutePath)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// lookup resolves a path taken from the URL. The router strips the leading
// separator, so absolute paths are retried with it restored.
func (s *Server) lookup(ctx context.Context, path string) (*types.FileRecord, error) {
	rec, err := s.backend.Lookup(ctx, path)
	if errors.Is(err, types.ErrNotIndexed) && !strings.HasPrefix(path, "/") {
		return s.backend.Lookup(ctx, "/"+path)
	}
	return rec, err
}

// fail maps domain errors to status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		noDup *types.NoDuplicateError
		drift *types.IndexInconsistencyError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrNotIndexed), errors.Is(err, os.ErrNotExist):
		status = http.StatusNotFound
	case errors.As(err, &noDup):
		status = http.StatusConflict
	case errors.As(err, &drift):
		s.log.WithError(err).Error("index out of sync with filesystem")
	default:
		s.log.WithError(err).WithField("url", r.URL.Path).Error("request failed")
	}
	writeError(w, status, err.Error())
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
