package boundary

import (
	"strconv"
)

// Style defaults for boundary outlines.
const (
	DefaultColor       = "#444"
	DefaultWeight      = 1.0
	DefaultFillOpacity = 0.2
	DefaultDashArray   = "3"
	HighlightWeight    = 3.0
)

// Style is the Leaflet path style applied to every feature of a layer.
type Style struct {
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
	Fill        bool    `json:"fill"`
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
	DashArray   string  `json:"dashArray"`
}

// ResolveStyle applies defaults to a user style. fillColor defaults to the
// resolved color. Values of the wrong type are ignored.
func ResolveStyle(raw map[string]any) Style {
	s := Style{
		Color:       DefaultColor,
		Weight:      DefaultWeight,
		FillOpacity: DefaultFillOpacity,
		DashArray:   DefaultDashArray,
	}
	if raw == nil {
		s.FillColor = s.Color
		return s
	}

	if v, ok := raw["color"].(string); ok {
		s.Color = v
	}
	if v, ok := toFloat(raw["weight"]); ok {
		s.Weight = v
	}
	if v, ok := raw["fill"]; ok {
		s.Fill = truthy(v)
	}
	s.FillColor = s.Color
	if v, ok := raw["fillColor"].(string); ok {
		s.FillColor = v
	}
	if v, ok := toFloat(raw["fillOpacity"]); ok {
		s.FillOpacity = v
	}
	switch v := raw["dashArray"].(type) {
	case string:
		s.DashArray = v
	case float64:
		s.DashArray = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s.DashArray = strconv.Itoa(v)
	}
	return s
}

// Highlight is the style applied while a feature is hovered.
func Highlight() map[string]float64 {
	return map[string]float64{"weight": HighlightWeight}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
