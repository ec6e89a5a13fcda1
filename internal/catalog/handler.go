package catalog

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	sitemapProtocolMaxURLs   = 50000
	DefaultSitemapChunkSize  = 10000
	searchMinChars           = 3
	searchPageSize           = 10
	sitemapXMLNS             = "http://www.sitemaps.org/schemas/sitemap/0.9"
	productSitemapPagePrefix = "products-"
	productSitemapPageSuffix = ".xml"
)

type Handler struct {
	store            *Store
	log              logrus.FieldLogger
	sitemapChunkSize int
	imageRoot        string
	requests         *prometheus.CounterVec
}

type HandlerOption func(*Handler)

// WithImageRoot resolves relative image paths against dir instead of the
// server's working directory. Use the directory the extractor ran from.
func WithImageRoot(dir string) HandlerOption {
	return func(h *Handler) { h.imageRoot = dir }
}

// NewHandler routes the read-only product API. chunkSize bounds the number
// of URLs per product sitemap and is capped at the protocol maximum.
func NewHandler(store *Store, log logrus.FieldLogger, chunkSize int, opts ...HandlerOption) http.Handler {
	if chunkSize <= 0 {
		chunkSize = DefaultSitemapChunkSize
	}
	if chunkSize > sitemapProtocolMaxURLs {
		chunkSize = sitemapProtocolMaxURLs
	}
	reg := prometheus.NewRegistry()
	h := &Handler{
		store:            store,
		log:              log,
		sitemapChunkSize: chunkSize,
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "abo_catalog_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.countRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/products/{id}", h.product)
	r.Get("/products/{id}/image", h.productImage)
	r.Get("/search", h.search)
	r.Get("/sitemap.xml", h.sitemapIndex)
	r.Get("/sitemaps/{page}", h.sitemapPage)
	return r
}

func (h *Handler) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

func (h *Handler) product(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), productIDParam(r))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		h.internalError(w, "fetch error", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) productImage(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), productIDParam(r))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		h.internalError(w, "fetch error", err)
		return
	}
	http.ServeFile(w, r, h.resolveImagePath(p.ImagePath))
}

// productIDParam undoes the escaping applied to ids in sitemap URLs. chi
// matches on the raw path when the request carries escaped slashes.
func productIDParam(r *http.Request) string {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return id
	}
	if unescaped, err := url.PathUnescape(id); err == nil {
		return unescaped
	}
	return id
}

func (h *Handler) resolveImagePath(p string) string {
	if h.imageRoot == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(h.imageRoot, p)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if len([]rune(q)) < searchMinChars {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("query must be at least %d characters", searchMinChars))
		return
	}
	page, ok := parsePageQueryParam(r, "page", 1)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	if _, ok := pageOffset(page, searchPageSize); !ok {
		writeError(w, http.StatusBadRequest, "page value is too large")
		return
	}
	res, err := h.store.Search(r.Context(), q, page, searchPageSize)
	if err != nil {
		h.internalError(w, "search error", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) sitemapIndex(w http.ResponseWriter, r *http.Request) {
	total, err := h.store.Count(r.Context())
	if err != nil {
		h.internalError(w, "sitemap count error", err)
		return
	}
	writeXML(w, buildSitemapIndexXML(requestBaseURL(r), total, h.sitemapChunkSize, time.Now()))
}

func (h *Handler) sitemapPage(w http.ResponseWriter, r *http.Request) {
	pageNum, ok := parseProductSitemapPage(chi.URLParam(r, "page"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	total, err := h.store.Count(r.Context())
	if err != nil {
		h.internalError(w, "sitemap count error", err)
		return
	}
	pageCount := (total + h.sitemapChunkSize - 1) / h.sitemapChunkSize
	if pageNum > pageCount {
		http.NotFound(w, r)
		return
	}
	ids, err := h.store.IDs(r.Context(), h.sitemapChunkSize, (pageNum-1)*h.sitemapChunkSize)
	if err != nil {
		h.internalError(w, "sitemap page error", err)
		return
	}
	writeXML(w, buildProductURLSetXML(requestBaseURL(r), ids))
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.log.WithError(err).Error(msg)
	writeError(w, http.StatusInternalServerError, "internal error")
}

type sitemapIndexXML struct {
	XMLName xml.Name        `xml:"sitemapindex"`
	Xmlns   string          `xml:"xmlns,attr"`
	Items   []sitemapRefXML `xml:"sitemap"`
}

type sitemapRefXML struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type urlSetXML struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	Items   []urlItemXML `xml:"url"`
}

type urlItemXML struct {
	Loc string `xml:"loc"`
}

func buildSitemapIndexXML(baseURL string, total, chunkSize int, now time.Time) sitemapIndexXML {
	pageCount := 1
	if total > 0 {
		pageCount = (total + chunkSize - 1) / chunkSize
	}
	lastMod := now.UTC().Format("2006-01-02")
	items := make([]sitemapRefXML, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		items = append(items, sitemapRefXML{
			Loc:     fmt.Sprintf("%s/sitemaps/%s%d%s", baseURL, productSitemapPagePrefix, i, productSitemapPageSuffix),
			LastMod: lastMod,
		})
	}
	return sitemapIndexXML{Xmlns: sitemapXMLNS, Items: items}
}

func buildProductURLSetXML(baseURL string, ids []string) urlSetXML {
	items := make([]urlItemXML, 0, len(ids))
	for _, id := range ids {
		items = append(items, urlItemXML{Loc: baseURL + "/products/" + url.PathEscape(id)})
	}
	return urlSetXML{Xmlns: sitemapXMLNS, Items: items}
}

func parseProductSitemapPage(name string) (int, bool) {
	if !strings.HasPrefix(name, productSitemapPagePrefix) || !strings.HasSuffix(name, productSitemapPageSuffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, productSitemapPagePrefix), productSitemapPageSuffix)
	if raw == "" {
		return 0, false
	}
	n := 0
	for _, ch := range raw {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		if int64(n) > maxIntValue()/10-1 {
			return 0, false
		}
		n = (n * 10) + int(ch-'0')
	}
	if n <= 0 {
		return 0, false
	}
	return n, true
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		if i := strings.Index(proto, ","); i >= 0 {
			proto = proto[:i]
		}
		scheme = strings.TrimSpace(proto)
	} else if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = "127.0.0.1:18744"
	}
	return scheme + "://" + host
}

func parsePageQueryParam(r *http.Request, key string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, true
	}
	n64, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n64 < 1 {
		return 0, false
	}
	if n64 > maxIntValue() {
		return 0, false
	}
	return int(n64), true
}

func writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	_ = enc.Encode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
