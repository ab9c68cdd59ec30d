package boundary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MetaKey is the top-level GeoJSON member that carries embedded layer
// metadata.
const MetaKey = "atlas"

// SidecarSuffix is appended to a boundary file's stem to name its metadata
// file.
const SidecarSuffix = ".meta.json"

// Meta describes how a boundary layer is displayed.
type Meta struct {
	Title          string         `json:"title" yaml:"title"`
	VisibleDefault bool           `json:"visible_default" yaml:"visible_default"`
	TooltipFields  []string       `json:"tooltip_fields,omitempty" yaml:"tooltip_fields,omitempty"`
	TooltipAliases []string       `json:"tooltip_aliases,omitempty" yaml:"tooltip_aliases,omitempty"`
	PopupFields    []string       `json:"popup_fields,omitempty" yaml:"popup_fields,omitempty"`
	Style          map[string]any `json:"style,omitempty" yaml:"style,omitempty"`
}

// rawMeta is the metadata document as written by users, either embedded or
// in a sidecar file.
type rawMeta struct {
	Title          *string         `json:"title"`
	VisibleDefault json.RawMessage `json:"visible_default"`
	Tooltip        *struct {
		Fields  []string `json:"fields"`
		Aliases []string `json:"aliases"`
	} `json:"tooltip"`
	Popup *struct {
		Fields []string `json:"fields"`
	} `json:"popup"`
	Style map[string]any `json:"style"`
}

// normalizeMeta fills a Meta from raw, which may be nil. A missing title
// falls back to fallbackTitle and a missing visible_default to true.
func normalizeMeta(raw *rawMeta, fallbackTitle string) (Meta, error) {
	meta := Meta{Title: fallbackTitle, VisibleDefault: true}
	if raw == nil {
		return meta, nil
	}

	if raw.Title != nil {
		meta.Title = *raw.Title
	}
	if len(raw.VisibleDefault) > 0 {
		var v any
		if err := json.Unmarshal(raw.VisibleDefault, &v); err != nil {
			return Meta{}, fmt.Errorf("visible_default: %w", err)
		}
		meta.VisibleDefault = truthy(v)
	}
	if raw.Tooltip != nil {
		meta.TooltipFields = raw.Tooltip.Fields
		meta.TooltipAliases = raw.Tooltip.Aliases
	}
	if raw.Popup != nil {
		meta.PopupFields = raw.Popup.Fields
	}
	meta.Style = raw.Style
	return meta, nil
}

// decodeMeta parses a metadata object. A null document yields nil.
func decodeMeta(data []byte) (*rawMeta, error) {
	var raw *rawMeta
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// embeddedMeta returns the metadata object stored under MetaKey in a GeoJSON
// document, or nil when the member is absent or not an object.
func embeddedMeta(members map[string]json.RawMessage) (*rawMeta, error) {
	data, ok := members[MetaKey]
	if !ok {
		return nil, nil
	}
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if _, isObject := probe.(map[string]any); !isObject {
		return nil, nil
	}
	return decodeMeta(data)
}

// sidecarMeta reads <dir>/<stem>.meta.json. It returns nil when the file does
// not exist.
func sidecarMeta(dir, stem string) (*rawMeta, error) {
	path := filepath.Join(dir, stem+SidecarSuffix)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	raw, err := decodeMeta(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return raw, nil
}

// truthy follows JSON-document truthiness: false, 0, "", null and empty
// arrays or objects are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
