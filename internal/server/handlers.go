package server

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/text/language"

	"github.com/conneroisu/atlas/internal/boundary"
	atlaserrors "github.com/conneroisu/atlas/internal/errors"
	"github.com/conneroisu/atlas/internal/mapview"
	"github.com/conneroisu/atlas/internal/metrics"
	"github.com/conneroisu/atlas/internal/templates"
	"github.com/conneroisu/atlas/internal/version"
)

// PageTitle is the heading of the map page.
const PageTitle = "Interactive Map"

// popupLanguages are the locales popup numbers can be formatted for. The
// first entry is the fallback.
var popupLanguages = language.NewMatcher([]language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
	language.Italian,
	language.Dutch,
	language.Portuguese,
})

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	opts := mapview.Options{
		Basemap:        q.Get("basemap"),
		IncludeMarkers: true,
	}
	opts.Language, _ = language.MatchStrings(popupLanguages, r.Header.Get("Accept-Language"))
	opts.Lat = s.floatParam(r, "lat")
	opts.Lon = s.floatParam(r, "lon")
	if z := q.Get("zoom"); z != "" {
		if zoom, err := strconv.Atoi(z); err == nil {
			opts.Zoom = zoom
		} else {
			s.logger.Debug(ctx, "Ignoring invalid query parameter", "param", "zoom", "value", z)
		}
	}

	m, err := s.maps.CreateMap(ctx, opts)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to create map")
		writeJSONError(w, http.StatusInternalServerError, "map_error", "failed to create map")
		return
	}

	var fragment bytes.Buffer
	if err := mapview.Render(m).Render(ctx, &fragment); err != nil {
		s.logger.Error(ctx, err, "Failed to render map")
		writeJSONError(w, http.StatusInternalServerError, "map_error", "failed to render map")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = templates.Render(w, s.tmpl, templates.PageData{
		Title:             PageTitle,
		StaticURL:         s.config.Site.StaticURLPath,
		MapHTML:           safeHTML(fragment.String()),
		AvailableBasemaps: s.maps.AvailableBasemaps(),
		SelectedBasemap:   m.Basemap,
		LiveReload:        s.watch,
	})
	if err != nil {
		s.logger.Error(ctx, err, "Failed to render page")
		writeJSONError(w, http.StatusInternalServerError, "template_error", "failed to render page")
		return
	}
	metrics.IncMapRendered(m.Basemap)
}

func (s *Server) floatParam(r *http.Request, name string) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.logger.Debug(r.Context(), "Ignoring invalid query parameter", "param", name, "value", raw)
		return 0
	}
	return v
}

// BasemapsResponse is the body of GET /api/basemaps.
type BasemapsResponse struct {
	Basemaps []string `json:"basemaps"`
	Default  string   `json:"default"`
}

func (s *Server) handleBasemaps(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), s.logger, w, BasemapsResponse{
		Basemaps: s.maps.AvailableBasemaps(),
		Default:  s.maps.DefaultBasemap(),
	})
}

// BoundaryInfo describes one loaded overlay.
type BoundaryInfo struct {
	Name     string            `json:"name"`
	Title    string            `json:"title"`
	Format   boundary.Format   `json:"format"`
	Visible  bool              `json:"visible"`
	Features int               `json:"features"`
	BBox     []float64         `json:"bbox,omitempty"`
	Style    boundary.Style    `json:"style"`
	Tooltip  *boundary.Tooltip `json:"tooltip,omitempty"`
	Popup    *boundary.Popup   `json:"popup,omitempty"`
}

// BoundariesResponse is the body of GET /api/boundaries.
type BoundariesResponse struct {
	Boundaries []BoundaryInfo         `json:"boundaries"`
	Problems   []atlaserrors.Problem `json:"problems"`
}

// DescribeBoundaries summarizes a loaded set for the API and the CLI.
func DescribeBoundaries(set *boundary.Set) BoundariesResponse {
	resp := BoundariesResponse{Boundaries: []BoundaryInfo{}, Problems: []atlaserrors.Problem{}}
	if set == nil {
		return resp
	}
	for _, l := range set.Layers {
		resp.Boundaries = append(resp.Boundaries, BoundaryInfo{
			Name:     l.Name,
			Title:    l.Meta.Title,
			Format:   l.Format,
			Visible:  l.Meta.VisibleDefault,
			Features: l.FeatureCount(),
			BBox:     l.BBox(),
			Style:    l.Style,
			Tooltip:  l.Tooltip,
			Popup:    l.Popup,
		})
	}
	resp.Problems = append(resp.Problems, set.Problems...)
	return resp
}

func (s *Server) handleBoundaries(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), s.logger, w, DescribeBoundaries(s.boundaries.Current()))
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status     string    `json:"status"`
	Version    string    `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
	Basemaps   int       `json:"basemaps"`
	Boundaries int       `json:"boundaries"`
	Skipped    int       `json:"skipped"`
	Clients    int       `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   version.GetShortVersion(),
		Timestamp: time.Now().UTC(),
		Basemaps:  s.catalog.Len(),
		Clients:   s.hub.ClientCount(),
	}
	if set := s.boundaries.Current(); set != nil {
		resp.Boundaries = len(set.Layers)
		resp.Skipped = len(set.Problems)
	}
	writeJSON(r.Context(), s.logger, w, resp)
}
