package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	routemw "github.com/example/routebook/internal/http/middleware"
	"github.com/example/routebook/internal/route/catalog"
	"github.com/example/routebook/internal/route/domain"
	"github.com/example/routebook/internal/route/likes"
)

// HTTP exposes the route catalog and like endpoints.
type HTTP struct {
	catalog  *catalog.Catalog
	likes    *likes.Service
	trackDir string
	logger   *zap.Logger
}

// NewHTTP constructs a handler. Track downloads are disabled when trackDir is empty.
func NewHTTP(cat *catalog.Catalog, svc *likes.Service, trackDir string, logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{catalog: cat, likes: svc, trackDir: trackDir, logger: logger}
}

// Router builds the chi router. extra middlewares run after client identification.
func (h *HTTP) Router(extra ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, routemw.RequestLogger(h.logger), middleware.Recoverer)
	r.Use(routemw.ClientIdentity)
	r.Use(extra...)
	r.Get("/v1/routes", h.listRoutes)
	r.Get("/v1/routes/{id}", h.getRoute)
	r.Post("/v1/routes/{id}/like", h.likeRoute)
	r.Get("/v1/routes/{id}/track", h.downloadTrack)
	return r
}

type routeView struct {
	domain.Route
	Difficulty domain.Difficulty `json:"difficulty"`
	HasLiked   bool              `json:"has_liked"`
}

type listResponse struct {
	Routes []routeView `json:"routes"`
	Status string      `json:"status,omitempty"`
}

type likeResponse struct {
	Likes    int  `json:"likes"`
	Accepted bool `json:"accepted"`
}

func (h *HTTP) view(r *http.Request, route domain.Route) routeView {
	return routeView{
		Route:      route,
		Difficulty: route.Difficulty(),
		HasLiked:   h.likes.HasVoted(r.Context(), clientID(r), route.ID),
	}
}

func (h *HTTP) listRoutes(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	q := catalog.Query{
		Search:     values.Get("q"),
		Type:       values.Get("type"),
		Difficulty: values.Get("difficulty"),
		Sort:       catalog.SortKey(values.Get("sort")),
		Location:   parseLocation(values.Get("lat"), values.Get("lon")),
	}
	res := h.catalog.Query(q)
	resp := listResponse{Routes: make([]routeView, 0, len(res.Routes)), Status: res.Status}
	for _, route := range res.Routes {
		resp.Routes = append(resp.Routes, h.view(r, route))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTP) getRoute(w http.ResponseWriter, r *http.Request) {
	route, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, route))
}

func (h *HTTP) likeRoute(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	count, accepted, err := h.likes.RecordLike(r.Context(), clientID(r), id)
	if err != nil {
		h.logger.Error("record like", zap.Int("route_id", id), zap.Error(err))
		http.Error(w, "like unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{Likes: count, Accepted: accepted})
}

func (h *HTTP) downloadTrack(w http.ResponseWriter, r *http.Request) {
	route, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.trackDir == "" || route.TrackFile == "" {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(filepath.Join(h.trackDir, filepath.Base(route.TrackFile)))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			h.logger.Error("open track", zap.Int("route_id", route.ID), zap.Error(err))
		}
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "track unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/gpx+xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", route.Name+".gpx"))
	http.ServeContent(w, r, route.TrackFile, info.ModTime(), f)
}

func (h *HTTP) lookup(w http.ResponseWriter, r *http.Request) (domain.Route, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return domain.Route{}, false
	}
	route, err := h.catalog.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return domain.Route{}, false
	}
	return route, true
}

func clientID(r *http.Request) string {
	if id, ok := routemw.ClientIDFromContext(r.Context()); ok {
		return id
	}
	return "anonymous"
}

// parseLocation returns nil unless both coordinates parse and lie within range.
func parseLocation(lat, lon string) *domain.GeoPoint {
	if lat == "" || lon == "" {
		return nil
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil
	}
	p := domain.GeoPoint{Lat: la, Lon: lo}
	if !p.Valid() {
		return nil
	}
	return &p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
