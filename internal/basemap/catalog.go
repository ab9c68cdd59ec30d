// Package basemap loads the catalog of tile layers a map can be drawn on.
//
// A catalog file is a JSON (or YAML) object with three required sections:
//
//	{
//	  "basemap_options":      {"OpenStreetMap": "https://tile.openstreetmap.org/{z}/{x}/{y}.png"},
//	  "basemap_attributions": {"OpenStreetMap": "&copy; OpenStreetMap contributors"},
//	  "default_map_config":   {"lat": 39.8283, "lon": -98.5795, "zoom": 4, "basemap": "OpenStreetMap"}
//	}
//
// and an optional "markers" list. The order of basemap_options is kept; it is
// the order basemaps appear in the layer control.
package basemap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	atlaserrors "github.com/conneroisu/atlas/internal/errors"
	"github.com/conneroisu/atlas/internal/logging"
)

// View is the initial map position and basemap.
type View struct {
	Lat     float64 `json:"lat" yaml:"lat"`
	Lon     float64 `json:"lon" yaml:"lon"`
	Zoom    int     `json:"zoom" yaml:"zoom"`
	Basemap string  `json:"basemap" yaml:"basemap"`
}

// Marker is a point of interest drawn on every map that asks for markers.
type Marker struct {
	Lat     float64 `json:"lat" yaml:"lat"`
	Lon     float64 `json:"lon" yaml:"lon"`
	Popup   string  `json:"popup" yaml:"popup"`
	Tooltip string  `json:"tooltip" yaml:"tooltip"`
}

// Catalog is a validated set of basemaps.
type Catalog struct {
	names        []string
	urls         map[string]string
	attributions map[string]string

	View    View
	Markers []Marker
}

// file is the on-disk shape of a catalog.
type file struct {
	BasemapOptions      map[string]string `json:"basemap_options" yaml:"basemap_options"`
	BasemapAttributions map[string]string `json:"basemap_attributions" yaml:"basemap_attributions"`
	DefaultMapConfig    View              `json:"default_map_config" yaml:"default_map_config"`
	Markers             *[]Marker         `json:"markers,omitempty" yaml:"markers,omitempty"`
}

// ConfigError reports a catalog that parsed but is not usable.
type ConfigError struct {
	Path string
	// MissingAttributions lists basemaps without an attribution, in catalog
	// order.
	MissingAttributions []string
	// UnknownDefault is the configured default basemap when it is not a listed
	// basemap. It is empty for the other failure.
	UnknownDefault string

	err *atlaserrors.AtlasError
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Path, e.err.Error())
}

// Unwrap exposes the coded error so callers can branch on the error code.
func (e *ConfigError) Unwrap() error { return e.err }

// New validates a catalog built in code. names gives the basemap order; every
// name must have a URL in urls.
func New(names []string, urls, attributions map[string]string, view View, markers []Marker) (*Catalog, error) {
	c := &Catalog{
		names:        append([]string(nil), names...),
		urls:         copyMap(urls),
		attributions: copyMap(attributions),
		View:         view,
		Markers:      append([]Marker(nil), markers...),
	}
	for _, name := range c.names {
		if _, ok := c.urls[name]; !ok {
			return nil, atlaserrors.NewInternalError(atlaserrors.ErrCodeConfigInvalid,
				fmt.Sprintf("basemap %q has no tile URL", name), nil)
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) validate() error {
	var missing []string
	for _, name := range c.names {
		if _, ok := c.attributions[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			MissingAttributions: missing,
			err: atlaserrors.NewConfigError(atlaserrors.ErrCodeMissingAttribution,
				fmt.Sprintf("missing attributions for basemaps: [%s]", quoteJoin(missing))),
		}
	}

	if !c.Has(c.View.Basemap) {
		return &ConfigError{
			UnknownDefault: c.View.Basemap,
			err: atlaserrors.NewConfigError(atlaserrors.ErrCodeUnknownBasemap,
				fmt.Sprintf("default basemap %q not found in basemap_options", c.View.Basemap)),
		}
	}
	return nil
}

// Load reads and validates a catalog file. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, atlaserrors.NewIOError(atlaserrors.ErrCodeFileNotFound, "basemap catalog not found", err).WithPath(path)
		}
		return nil, atlaserrors.NewIOError(atlaserrors.ErrCodeFileRead, "cannot read basemap catalog", err).WithPath(path)
	}

	c, err := Parse(data, isYAML(path))
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
			return nil, ce
		}
		var ae *atlaserrors.AtlasError
		if errors.As(err, &ae) {
			return nil, ae.WithPath(path)
		}
		return nil, err
	}
	return c, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist. Every other failure is returned.
func LoadOrDefault(path string, logger logging.Logger) (*Catalog, error) {
	c, err := Load(path)
	if err == nil {
		return c, nil
	}
	var ae *atlaserrors.AtlasError
	if errors.As(err, &ae) && ae.Code == atlaserrors.ErrCodeFileNotFound {
		if logger != nil {
			logger.Warn(context.Background(), nil, "basemap catalog not found, using built-in basemaps", "path", path)
		}
		return Default(), nil
	}
	return nil, err
}

// Parse decodes and validates catalog data.
func Parse(data []byte, asYAML bool) (*Catalog, error) {
	var (
		f     file
		order []string
		err   error
	)
	if asYAML {
		err = yaml.Unmarshal(data, &f)
		if err == nil {
			order, err = yamlKeyOrder(data, "basemap_options")
		}
	} else {
		err = json.Unmarshal(data, &f)
		if err == nil {
			order, err = jsonKeyOrder(data, "basemap_options")
		}
	}
	if err != nil {
		return nil, atlaserrors.NewFormatError(atlaserrors.ErrCodeConfigParse, "invalid basemap catalog", err)
	}

	c := &Catalog{
		names:        order,
		urls:         f.BasemapOptions,
		attributions: f.BasemapAttributions,
		View:         f.DefaultMapConfig,
	}
	if c.urls == nil {
		c.urls = map[string]string{}
	}
	if c.attributions == nil {
		c.attributions = map[string]string{}
	}
	if f.Markers != nil {
		c.Markers = *f.Markers
	} else {
		c.Markers = SampleMarkers()
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Names returns the basemap names in catalog order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Has reports whether name is a listed basemap.
func (c *Catalog) Has(name string) bool {
	_, ok := c.urls[name]
	return ok
}

// URL returns the tile URL template of name.
func (c *Catalog) URL(name string) string { return c.urls[name] }

// Attribution returns the HTML attribution of name.
func (c *Catalog) Attribution(name string) string { return c.attributions[name] }

// Len returns the number of basemaps.
func (c *Catalog) Len() int { return len(c.names) }

// MarshalJSON writes the catalog back in its file form with basemap order
// preserved.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	writeOrdered := func(key string, values map[string]string) error {
		buf.WriteString(fmt.Sprintf("%q:{", key))
		for i, name := range c.names {
			if i > 0 {
				buf.WriteString(",")
			}
			k, _ := json.Marshal(name)
			v, err := json.Marshal(values[name])
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteString(":")
			buf.Write(v)
		}
		buf.WriteString("}")
		return nil
	}
	if err := writeOrdered("basemap_options", c.urls); err != nil {
		return nil, err
	}
	buf.WriteString(",")
	if err := writeOrdered("basemap_attributions", c.attributions); err != nil {
		return nil, err
	}
	view, err := json.Marshal(c.View)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`,"default_map_config":`)
	buf.Write(view)
	markers, err := json.Marshal(c.Markers)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`,"markers":`)
	buf.Write(markers)
	buf.WriteString("}")
	return buf.Bytes(), nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// jsonKeyOrder returns the keys of the object stored under section, in
// document order.
func jsonKeyOrder(data []byte, section string) ([]string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	raw, ok := top[section]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected token %v", section, tok)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		keys = appendUnique(keys, key)
	}
	return keys, nil
}

// yamlKeyOrder is jsonKeyOrder for YAML documents.
func yamlKeyOrder(data []byte, section string) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, nil
	}
	top := doc.Content[0]
	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value != section {
			continue
		}
		value := top.Content[i+1]
		if value.Kind != yaml.MappingNode {
			return nil, nil
		}
		var keys []string
		for j := 0; j+1 < len(value.Content); j += 2 {
			keys = appendUnique(keys, value.Content[j].Value)
		}
		return keys, nil
	}
	return nil, nil
}

// appendUnique keeps the first position of a duplicated key; the decoded map
// holds the last value, as encoding/json does.
func appendUnique(keys []string, key string) []string {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	return append(keys, key)
}

func quoteJoin(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
