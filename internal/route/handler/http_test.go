package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	routemw "github.com/example/routebook/internal/http/middleware"
	"github.com/example/routebook/internal/route/catalog"
	"github.com/example/routebook/internal/route/domain"
	"github.com/example/routebook/internal/route/handler"
	"github.com/example/routebook/internal/route/likes"
	"github.com/example/routebook/internal/route/votes"
)

type routeBody struct {
	ID         int    `json:"id"`
	Likes      int    `json:"likes"`
	Difficulty string `json:"difficulty"`
	HasLiked   bool   `json:"has_liked"`
}

type listBody struct {
	Routes []routeBody `json:"routes"`
	Status string      `json:"status"`
}

func newServer(t *testing.T, trackDir string) *httptest.Server {
	t.Helper()
	c, err := catalog.New([]domain.Route{
		{ID: 1, Name: "Jersey Inland", Type: "Cycling", DistanceKM: 64.4, ElevationM: 541, Likes: 5, Lat: 49.19364, Lon: -2.12765, TrackFile: "Jersey inland.gpx"},
		{ID: 2, Name: "Lap of Jersey", Type: "Cycling", DistanceKM: 68.9, ElevationM: 656, Likes: 2, Lat: 49.19398, Lon: -2.12872, TrackFile: "Lap of Jersey.gpx"},
		{ID: 3, Name: "Town Walk", Type: "Walking", DistanceKM: 4, ElevationM: 30, Likes: 1, Lat: 49.18, Lon: -2.10},
	})
	require.NoError(t, err)
	svc := likes.New(c, nil, votes.NewMemory(), nil, nil, nil, nil)
	srv := httptest.NewServer(handler.NewHTTP(c, svc, trackDir, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, client string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if client != "" {
		req.Header.Set(routemw.ClientHeader, client)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestListRoutesFiltersAndSorts(t *testing.T) {
	srv := newServer(t, "")
	resp := do(t, http.MethodGet, srv.URL+"/v1/routes?type=Cycling&difficulty=Hard&sort=likes", "c1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[listBody](t, resp)
	require.Len(t, body.Routes, 2)
	require.Equal(t, 1, body.Routes[0].ID)
	require.Equal(t, "Hard", body.Routes[0].Difficulty)
	require.Equal(t, 2, body.Routes[1].ID)
	require.Empty(t, body.Status)
}

func TestListRoutesNearMeWithoutLocation(t *testing.T) {
	srv := newServer(t, "")
	body := decode[listBody](t, do(t, http.MethodGet, srv.URL+"/v1/routes?sort=nearMe", "c1"))
	require.Equal(t, catalog.StatusLocationUnavailable, body.Status)
	require.Equal(t, []int{1, 2, 3}, []int{body.Routes[0].ID, body.Routes[1].ID, body.Routes[2].ID})

	body = decode[listBody](t, do(t, http.MethodGet, srv.URL+"/v1/routes?sort=nearMe&lat=149.18&lon=-2.10", "c1"))
	require.Equal(t, catalog.StatusLocationUnavailable, body.Status)

	body = decode[listBody](t, do(t, http.MethodGet, srv.URL+"/v1/routes?sort=nearMe&lat=49.18&lon=-2.10", "c1"))
	require.Empty(t, body.Status)
	require.Equal(t, 3, body.Routes[0].ID)
}

func TestLikeRouteOncePerClient(t *testing.T) {
	srv := newServer(t, "")

	first := decode[map[string]any](t, do(t, http.MethodPost, srv.URL+"/v1/routes/2/like", "browser"))
	require.Equal(t, map[string]any{"likes": 3.0, "accepted": true}, first)

	second := decode[map[string]any](t, do(t, http.MethodPost, srv.URL+"/v1/routes/2/like", "browser"))
	require.Equal(t, map[string]any{"likes": 3.0, "accepted": false}, second)

	route := decode[routeBody](t, do(t, http.MethodGet, srv.URL+"/v1/routes/2", "browser"))
	require.Equal(t, 3, route.Likes)
	require.True(t, route.HasLiked)

	other := decode[routeBody](t, do(t, http.MethodGet, srv.URL+"/v1/routes/2", "someone-else"))
	require.False(t, other.HasLiked)
}

func TestLikeUnknownRouteIsSilent(t *testing.T) {
	srv := newServer(t, "")
	resp := do(t, http.MethodPost, srv.URL+"/v1/routes/99/like", "browser")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]any{"likes": 0.0, "accepted": false}, decode[map[string]any](t, resp))

	require.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, srv.URL+"/v1/routes/abc/like", "browser").StatusCode)
}

func TestGetRouteNotFound(t *testing.T) {
	srv := newServer(t, "")
	require.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/v1/routes/42", "").StatusCode)
}

func TestIssuesClientCookie(t *testing.T) {
	srv := newServer(t, "")
	resp := do(t, http.MethodGet, srv.URL+"/v1/routes", "")
	require.NotEmpty(t, resp.Cookies())
	require.Equal(t, routemw.ClientCookie, resp.Cookies()[0].Name)
}

func TestDownloadTrack(t *testing.T) {
	dir := t.TempDir()
	gpx := `<?xml version="1.0"?><gpx version="1.1"><trk><trkseg></trkseg></trk></gpx>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Jersey inland.gpx"), []byte(gpx), 0o600))
	srv := newServer(t, dir)

	resp := do(t, http.MethodGet, srv.URL+"/v1/routes/1/track", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/gpx+xml", resp.Header.Get("Content-Type"))
	require.Equal(t, `attachment; filename="Jersey Inland.gpx"`, resp.Header.Get("Content-Disposition"))

	require.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/v1/routes/2/track", "").StatusCode)
	require.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/v1/routes/3/track", "").StatusCode)
}
