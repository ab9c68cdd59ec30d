// Package mapview assembles basemaps, markers and boundary overlays into a
// map description and renders it as a Leaflet fragment.
package mapview

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/conneroisu/atlas/internal/basemap"
	"github.com/conneroisu/atlas/internal/boundary"
	"github.com/conneroisu/atlas/internal/logging"
)

// Property keys that carry precomputed tooltip and popup HTML to the
// browser.
const (
	tooltipKey = "_atlas_tooltip"
	popupKey   = "_atlas_popup"
)

// BoundarySource supplies the overlays drawn on every map.
type BoundarySource interface {
	Current() *boundary.Set
}

// Options select what CreateMap draws. Zero values fall back to the catalog
// defaults.
type Options struct {
	Basemap        string
	Lat            float64
	Lon            float64
	Zoom           int
	IncludeMarkers bool
	// Language localizes numbers in popups. The zero tag means English.
	Language language.Tag
}

// TileLayer is one basemap choice in the layer control.
type TileLayer struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	Active      bool   `json:"active"`
}

// Overlay is a boundary layer prepared for the browser.
type Overlay struct {
	Name          string             `json:"name"`
	Visible       bool               `json:"visible"`
	Style         boundary.Style     `json:"style"`
	Highlight     map[string]float64 `json:"highlight"`
	TooltipSticky bool               `json:"tooltip_sticky"`
	PopupMaxWidth int                `json:"popup_max_width,omitempty"`
	Bounds        []float64          `json:"bounds,omitempty"`
	Features      json.RawMessage    `json:"features"`
}

// Map is everything the browser needs to draw one map.
type Map struct {
	ID           string           `json:"id"`
	Center       [2]float64       `json:"center"`
	Zoom         int              `json:"zoom"`
	Basemap      string           `json:"basemap"`
	BaseLayers   []TileLayer      `json:"base_layers"`
	Overlays     []Overlay        `json:"overlays"`
	Markers      []basemap.Marker `json:"markers"`
	LayerControl bool             `json:"layer_control"`
}

// Service creates maps from a basemap catalog and a boundary source.
type Service struct {
	catalog    *basemap.Catalog
	boundaries BoundarySource
	logger     logging.Logger
}

// NewService binds a catalog and an optional boundary source.
func NewService(catalog *basemap.Catalog, boundaries BoundarySource, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		catalog:    catalog,
		boundaries: boundaries,
		logger:     logger.WithComponent("mapview"),
	}
}

// Catalog returns the catalog the service draws from.
func (s *Service) Catalog() *basemap.Catalog { return s.catalog }

// DefaultBasemap returns the catalog's default basemap.
func (s *Service) DefaultBasemap() string { return s.catalog.View.Basemap }

// AvailableBasemaps lists basemap names in catalog order.
func (s *Service) AvailableBasemaps() []string { return s.catalog.Names() }

// ValidateBasemap returns name when the catalog has it and the default
// basemap otherwise.
func (s *Service) ValidateBasemap(name string) string {
	if s.catalog.Has(name) {
		return name
	}
	return s.DefaultBasemap()
}

// CreateMap builds a map. The selected basemap comes first and is active;
// the others follow in catalog order.
func (s *Service) CreateMap(ctx context.Context, opts Options) (*Map, error) {
	view := s.catalog.View
	if opts.Basemap == "" {
		opts.Basemap = view.Basemap
	}
	if opts.Lat == 0 {
		opts.Lat = view.Lat
	}
	if opts.Lon == 0 {
		opts.Lon = view.Lon
	}
	if opts.Zoom == 0 {
		opts.Zoom = view.Zoom
	}
	if opts.Language == language.Und {
		opts.Language = language.English
	}
	selected := s.ValidateBasemap(opts.Basemap)
	if selected != opts.Basemap {
		s.logger.Debug(ctx, "Unknown basemap requested, using default", "requested", opts.Basemap, "basemap", selected)
	}

	m := &Map{
		ID:           newMapID(),
		Center:       [2]float64{opts.Lat, opts.Lon},
		Zoom:         opts.Zoom,
		Basemap:      selected,
		BaseLayers:   s.baseLayers(selected),
		Overlays:     []Overlay{},
		Markers:      []basemap.Marker{},
		LayerControl: true,
	}

	if opts.IncludeMarkers {
		m.Markers = append(m.Markers, s.catalog.Markers...)
	}

	if s.boundaries != nil {
		if set := s.boundaries.Current(); set != nil {
			printer := boundary.Printer(opts.Language)
			for _, layer := range set.Layers {
				overlay, err := newOverlay(layer, printer)
				if err != nil {
					return nil, fmt.Errorf("overlay %s: %w", layer.Name, err)
				}
				m.Overlays = append(m.Overlays, overlay)
			}
		}
	}

	return m, nil
}

func (s *Service) baseLayers(selected string) []TileLayer {
	names := s.catalog.Names()
	layers := make([]TileLayer, 0, len(names))
	layers = append(layers, s.tileLayer(selected, true))
	for _, name := range names {
		if name != selected {
			layers = append(layers, s.tileLayer(name, false))
		}
	}
	return layers
}

func (s *Service) tileLayer(name string, active bool) TileLayer {
	return TileLayer{
		Name:        name,
		URL:         s.catalog.URL(name),
		Attribution: s.catalog.Attribution(name),
		Active:      active,
	}
}

func newOverlay(layer *boundary.Layer, printer *message.Printer) (Overlay, error) {
	o := Overlay{
		Name:      layer.Meta.Title,
		Visible:   layer.Meta.VisibleDefault,
		Style:     layer.Style,
		Highlight: boundary.Highlight(),
		Bounds:    layer.BBox(),
	}
	if layer.Tooltip != nil {
		o.TooltipSticky = layer.Tooltip.Sticky
	}
	if layer.Popup != nil {
		o.PopupMaxWidth = layer.Popup.MaxWidth
	}

	fc := geojson.NewFeatureCollection()
	if layer.Features != nil {
		fc.Features = make([]*geojson.Feature, 0, len(layer.Features.Features))
		for _, f := range layer.Features.Features {
			if f == nil {
				continue
			}
			fc.Append(decorate(f, layer, printer))
		}
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return Overlay{}, err
	}
	o.Features = data
	return o, nil
}

// decorate returns a copy of f whose properties carry the rendered tooltip
// and popup. The layer's own features are shared between requests and are
// never modified.
func decorate(f *geojson.Feature, layer *boundary.Layer, printer *message.Printer) *geojson.Feature {
	if layer.Tooltip == nil && layer.Popup == nil {
		return f
	}
	out := *f
	out.Properties = f.Properties.Clone()
	if out.Properties == nil {
		out.Properties = geojson.Properties{}
	}
	if html := layer.Tooltip.HTML(f.Properties, printer); html != "" {
		out.Properties[tooltipKey] = html
	}
	if html := layer.Popup.HTML(f.Properties, printer); html != "" {
		out.Properties[popupKey] = html
	}
	return &out
}

func newMapID() string {
	return "map_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
