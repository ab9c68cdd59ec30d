package boundary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Format identifies how a boundary file is read.
type Format string

const (
	FormatGeoJSON    Format = "geojson"
	FormatGeoPackage Format = "gpkg"
)

// Layer is one boundary file ready to be drawn as a map overlay.
type Layer struct {
	Name     string                     `json:"name"`
	Path     string                     `json:"-"`
	Format   Format                     `json:"format"`
	Meta     Meta                       `json:"meta"`
	Style    Style                      `json:"style"`
	Tooltip  *Tooltip                   `json:"tooltip,omitempty"`
	Popup    *Popup                     `json:"popup,omitempty"`
	Features *geojson.FeatureCollection `json:"-"`
	Bounds   *orb.Bound                 `json:"-"`
}

// BBox returns the layer extent as [minLon, minLat, maxLon, maxLat], or nil
// when no feature has a geometry.
func (l *Layer) BBox() []float64 {
	if l.Bounds == nil {
		return nil
	}
	return []float64{l.Bounds.Min.Lon(), l.Bounds.Min.Lat(), l.Bounds.Max.Lon(), l.Bounds.Max.Lat()}
}

// FeatureCount returns the number of features in the layer.
func (l *Layer) FeatureCount() int {
	if l.Features == nil {
		return 0
	}
	return len(l.Features.Features)
}

// computeBounds unions the bounds of every non-nil geometry.
func computeBounds(fc *geojson.FeatureCollection) *orb.Bound {
	var (
		bound orb.Bound
		found bool
	)
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		if !found {
			bound, found = b, true
			continue
		}
		bound = bound.Union(b)
	}
	if !found {
		return nil
	}
	return &bound
}

// readGeoJSON reads a GeoJSON document of any type and returns it as a
// feature collection together with its top-level members.
func readGeoJSON(path string) (*geojson.FeatureCollection, map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}
	var kind string
	if raw, ok := members["type"]; ok {
		if err := json.Unmarshal(raw, &kind); err != nil {
			return nil, nil, fmt.Errorf("invalid GeoJSON type: %w", err)
		}
	}

	switch kind {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid feature collection: %w", err)
		}
		delete(fc.ExtraMembers, MetaKey)
		return fc, members, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid feature: %w", err)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(f)
		return fc, members, nil
	case "":
		return nil, nil, fmt.Errorf("invalid GeoJSON: missing type")
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid geometry: %w", err)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(g.Geometry()))
		return fc, members, nil
	}
}

// MarshalFeatures renders the layer's features as GeoJSON.
func (l *Layer) MarshalFeatures() ([]byte, error) {
	if l.Features == nil {
		return []byte(`{"type":"FeatureCollection","features":[]}`), nil
	}
	data, err := l.Features.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(data), nil
}
