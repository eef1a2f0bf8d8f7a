package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/acheong08/mjs-registry/internal/artifact"
	"github.com/acheong08/mjs-registry/internal/registry"
	"github.com/acheong08/mjs-registry/pkg/models"
)

const (
	pingPath    = "/-/ping"
	eventsPath  = "/-/events"
	archiveExt  = ".tgz"
	notFoundMsg = "Not Found"

	manifestCacheControl = "no-cache, no-store, must-revalidate"
	archiveCacheControl  = "public, max-age=31536000, immutable"
)

// Handler serves the npm read protocol over the module store:
//
//	GET /{scope}%2f{name}                 manifest JSON
//	GET /{scope}/{name}/{version}.tgz     version archive
//
// Everything else is a plain-text 404, including malformed identities, so
// probing clients cannot learn the store layout.
type Handler struct {
	manifests *registry.Builder
	artifacts *artifact.Cache
	events    http.Handler
	logger    *log.Logger
}

// NewHandler creates the registry handler. events may be nil to disable the build feed.
func NewHandler(manifests *registry.Builder, artifacts *artifact.Cache, events http.Handler, logger *log.Logger) *Handler {
	return &Handler{
		manifests: manifests,
		artifacts: artifacts,
		events:    events,
		logger:    logger.WithPrefix("http"),
	}
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	h.route(rec, r)

	h.logger.Info("request",
		"method", r.Method,
		"path", r.URL.EscapedPath(),
		"status", rec.status,
		"bytes", rec.written,
		"duration", time.Since(start),
	)
}

func (h *Handler) route(w *statusRecorder, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodOptions:
		setCORSHeaders(w.Header())
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		notFound(w)
		return
	}

	decoded, err := url.PathUnescape(r.URL.EscapedPath())
	if err != nil {
		notFound(w)
		return
	}

	switch decoded {
	case pingPath:
		writeJSON(w, map[string]string{})
		return
	case eventsPath:
		if h.events == nil {
			notFound(w)
			return
		}
		h.events.ServeHTTP(w.ResponseWriter, r)
		return
	}

	segments := strings.SplitN(strings.TrimPrefix(decoded, "/"), "/", 3)
	switch len(segments) {
	case 2:
		h.serveManifest(w, r, models.PackageID{Scope: segments[0], Name: segments[1]})
	case 3:
		version, ok := strings.CutSuffix(segments[2], archiveExt)
		if !ok || version == "" {
			notFound(w)
			return
		}
		h.serveArchive(w, r, models.PackageVersion{
			PackageID: models.PackageID{Scope: segments[0], Name: segments[1]},
			Version:   version,
		})
	default:
		notFound(w)
	}
}

func (h *Handler) serveManifest(w http.ResponseWriter, r *http.Request, pkg models.PackageID) {
	if !registry.IsValidScope(pkg.Scope) || !registry.IsValidName(pkg.Name) {
		notFound(w)
		return
	}

	manifest, err := h.manifests.Build(r.Context(), pkg, RequestOrigin(r))
	if err != nil {
		h.logFailure("manifest", pkg.FullName(), err)
		notFound(w)
		return
	}

	setCORSHeaders(w.Header())
	w.Header().Set("Cache-Control", manifestCacheControl)
	writeJSON(w, manifest)
	h.logger.Debug("served manifest", "path", "/"+pkg.Escaped(), "latest", manifest.DistTags["latest"])
}

func (h *Handler) serveArchive(w http.ResponseWriter, r *http.Request, pv models.PackageVersion) {
	if !registry.IsValidScope(pv.Scope) || !registry.IsValidName(pv.Name) || !registry.IsValidVersion(pv.Version) {
		notFound(w)
		return
	}

	art, err := h.artifacts.Open(r.Context(), pv)
	if err != nil {
		h.logFailure("archive", pv.ID(), err)
		var werr *artifact.CacheWriteError
		if errors.As(err, &werr) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		notFound(w)
		return
	}
	defer art.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(art.Size, 10))
	w.Header().Set("Cache-Control", archiveCacheControl)
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, art); err != nil {
		h.logger.Debug("archive stream interrupted", "package", pv, "err", err)
	}
}

func (h *Handler) logFailure(kind, id string, err error) {
	if errors.Is(err, registry.ErrNotFound) {
		h.logger.Debug(kind+" not found", "package", id, "err", err)
		return
	}
	h.logger.Warn(kind+" failed", "package", id, "err", err)
}

// RequestOrigin returns "{scheme}://{host}" as seen by the client, honouring
// X-Forwarded-Proto and X-Forwarded-Host from a fronting proxy.
func RequestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = proto
	}

	host := r.Host
	if fwd := firstHeaderValue(r.Header.Get("X-Forwarded-Host")); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

func firstHeaderValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "*")
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func notFound(w http.ResponseWriter) {
	http.Error(w, notFoundMsg, http.StatusNotFound)
}

// statusRecorder captures the response status and size for request logging
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	n, err := s.ResponseWriter.Write(p)
	s.written += int64(n)
	return n, err
}
