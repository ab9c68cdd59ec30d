// Package boundary discovers boundary overlay files and prepares them for
// display.
//
// Supported formats are GeoJSON (.geojson, .json) and GeoPackage (.gpkg).
// Display metadata is resolved in this order, first found wins:
//
//  1. an object under the top-level "atlas" member of a GeoJSON file
//  2. a sidecar file named <stem>.meta.json next to the boundary file
//  3. defaults (title = file stem, visible by default)
//
// GeoPackage files only use sidecar metadata. A file that cannot be read is
// logged and skipped; it never prevents the other layers from loading.
package boundary

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/paulmach/orb/geojson"

	atlaserrors "github.com/conneroisu/atlas/internal/errors"
	"github.com/conneroisu/atlas/internal/logging"
)

var supportedExts = map[string]Format{
	".geojson": FormatGeoJSON,
	".json":    FormatGeoJSON,
	".gpkg":    FormatGeoPackage,
}

// IsBoundaryFile reports whether name would be picked up by discovery,
// ignoring exclude patterns.
func IsBoundaryFile(name string) bool {
	if strings.HasSuffix(name, SidecarSuffix) {
		return false
	}
	_, ok := supportedExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsRelevant reports whether a change to name can affect the loaded layers.
// Sidecar metadata files are relevant.
func IsRelevant(name string) bool {
	return IsBoundaryFile(name) || strings.HasSuffix(name, SidecarSuffix)
}

// Set is the result of one load pass.
type Set struct {
	Layers   []*Layer              `json:"layers"`
	Problems []atlaserrors.Problem `json:"problems"`
}

// Manager loads boundary layers from a single directory.
type Manager struct {
	dir     string
	exclude []string
	logger  logging.Logger

	mu      sync.RWMutex
	current *Set
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger.WithComponent("boundary")
		}
	}
}

// WithExcludePatterns skips files whose name matches any doublestar pattern.
func WithExcludePatterns(patterns []string) Option {
	return func(m *Manager) {
		m.exclude = append([]string(nil), patterns...)
	}
}

// NewManager creates a manager for dir.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:     dir,
		logger:  logging.Discard(),
		current: &Set{Layers: []*Layer{}, Problems: []atlaserrors.Problem{}},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the boundary directory.
func (m *Manager) Dir() string { return m.dir }

// Files returns the boundary files in the directory sorted by name. A missing
// directory yields no files and no error.
func (m *Manager) Files(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Debug(ctx, "Boundary directory does not exist", "dir", m.dir)
			return nil, nil
		}
		return nil, atlaserrors.NewIOError(atlaserrors.ErrCodeFileRead, "cannot read boundary directory", err).WithPath(m.dir)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !IsBoundaryFile(name) || m.excluded(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	m.logger.Debug(ctx, fmt.Sprintf("Found %d boundary files", len(names)), "files", names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(m.dir, name)
	}
	return paths, nil
}

func (m *Manager) excluded(name string) bool {
	for _, pattern := range m.exclude {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Load reads every boundary file. Files that fail are recorded as problems
// and skipped. Only a failure to list the directory is returned as an error.
func (m *Manager) Load(ctx context.Context) (*Set, error) {
	perf := logging.StartOperation(m.logger, "load_boundaries")
	m.logger.Debug(ctx, "Searching for boundary files", "dir", m.dir)

	paths, err := m.Files(ctx)
	if err != nil {
		return nil, err
	}

	problems := atlaserrors.NewCollector()
	set := &Set{Layers: make([]*Layer, 0, len(paths))}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		layer, err := m.LoadFile(ctx, path)
		if err != nil {
			name := filepath.Base(path)
			m.logger.Warn(ctx, err, fmt.Sprintf("Skipping %s due to error", name), "file", name)
			problems.Add(name, atlaserrors.SeverityWarning, err)
			continue
		}
		set.Layers = append(set.Layers, layer)
	}
	set.Problems = problems.Problems()

	perf.End(ctx, "layers", len(set.Layers), "skipped", len(set.Problems))
	return set, nil
}

// Reload loads the directory and makes the result current.
func (m *Manager) Reload(ctx context.Context) (*Set, error) {
	set, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.current = set
	m.mu.Unlock()
	return set, nil
}

// Current returns the result of the last successful Reload.
func (m *Manager) Current() *Set {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// LoadFile reads a single boundary file.
func (m *Manager) LoadFile(ctx context.Context, path string) (*Layer, error) {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	format, ok := supportedExts[ext]
	if !ok {
		return nil, atlaserrors.NewFormatError(atlaserrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("unsupported boundary format %q", ext), nil).WithPath(path)
	}

	var (
		features *geojson.FeatureCollection
		raw      *rawMeta
		err      error
	)
	switch format {
	case FormatGeoJSON:
		var members map[string]json.RawMessage
		features, members, err = readGeoJSON(path)
		if err != nil {
			return nil, err
		}
		raw, err = embeddedMeta(members)
		if err != nil {
			return nil, fmt.Errorf("embedded metadata: %w", err)
		}
		if raw == nil {
			raw, err = sidecarMeta(filepath.Dir(path), stem)
		}
	case FormatGeoPackage:
		features, err = readGeoPackage(ctx, path)
		if err != nil {
			return nil, err
		}
		raw, err = sidecarMeta(filepath.Dir(path), stem)
	}
	if err != nil {
		return nil, err
	}

	meta, err := normalizeMeta(raw, stem)
	if err != nil {
		return nil, err
	}
	m.logger.Debug(ctx, "Boundary metadata",
		"file", name,
		"title", meta.Title,
		"tooltip_fields", meta.TooltipFields,
		"popup_fields", meta.PopupFields,
	)

	return &Layer{
		Name:     name,
		Path:     path,
		Format:   format,
		Meta:     meta,
		Style:    ResolveStyle(meta.Style),
		Tooltip:  newTooltip(meta),
		Popup:    newPopup(meta),
		Features: features,
		Bounds:   computeBounds(features),
	}, nil
}
