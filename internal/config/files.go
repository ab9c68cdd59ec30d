package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	atlaserrors "github.com/conneroisu/atlas/internal/errors"
	"github.com/conneroisu/atlas/internal/logging"
)

// Section names of the server configuration file.
const (
	SectionInit        = "server_init"
	SectionRun         = "server_run"
	SectionLogging     = "logging"
	SectionDevelopment = "development"
	SectionRateLimit   = "rate_limit"
	SectionBoundaries  = "boundaries"
)

// runBaseKeys are the server_run options the HTTP server consumes directly.
var runBaseKeys = map[string]bool{
	"host":        true,
	"port":        true,
	"debug":       true,
	"load_dotenv": true,
}

// Defaults returns the built-in configuration tree. Every call returns a new
// tree, so callers may modify the result freely.
func Defaults() map[string]any {
	return map[string]any{
		SectionInit: map[string]any{
			"static_url_path": nil,
			"static_folder":   "static",
			"template_folder": "templates",
			"instance_path":   nil,
			"root_path":       nil,
		},
		SectionRun: map[string]any{
			"host":                "127.0.0.1",
			"port":                5000,
			"debug":               false,
			"load_dotenv":         true,
			"use_reloader":        nil,
			"use_debugger":        nil,
			"extra_files":         []any{},
			"exclude_patterns":    []any{},
			"threaded":            false,
			"processes":           1,
			"passthrough_errors":  false,
			"ssl_context":         nil,
			"certfile":            nil,
			"keyfile":             nil,
			"read_header_timeout": "5s",
			"shutdown_timeout":    "10s",
		},
		SectionLogging: map[string]any{
			"level":  "info",
			"format": "text",
			"file":   "",
		},
		SectionDevelopment: map[string]any{
			"hot_reload":     true,
			"watch_debounce": "300ms",
		},
		SectionRateLimit: map[string]any{
			"enabled":             false,
			"requests_per_minute": 600,
		},
		SectionBoundaries: map[string]any{
			"exclude_patterns": []any{},
		},
	}
}

// DeepUpdate recursively merges override into base and returns the result.
// Neither input is mutated. Nested maps are merged key by key; every other
// value in override, including false, 0, "" and empty lists, replaces the
// value in base.
func DeepUpdate(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		ov, overrideIsMap := v.(map[string]any)
		bv, baseIsMap := out[k].(map[string]any)
		if overrideIsMap && baseIsMap {
			out[k] = DeepUpdate(bv, ov)
			continue
		}
		out[k] = v
	}
	return out
}

// LoadFile reads a JSON or YAML configuration file and merges it over
// defaults.
//
// An empty path returns defaults unchanged. A path that does not exist logs a
// warning and also returns defaults unchanged. Decode and read failures are
// returned to the caller. Keys in the file that have no default are kept.
func LoadFile(path string, defaults map[string]any, logger logging.Logger) (map[string]any, error) {
	if path == "" {
		return defaults, nil
	}
	if logger == nil {
		logger = logging.Discard()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn(context.Background(), nil, "config file not found, using defaults", "path", path)
			return defaults, nil
		}
		return nil, atlaserrors.NewIOError(atlaserrors.ErrCodeFileRead, "cannot read config file", err).WithPath(path)
	}

	user, err := decodeTree(path, data)
	if err != nil {
		return nil, err
	}
	return DeepUpdate(defaults, user), nil
}

// decodeTree decodes data as YAML for .yaml/.yml files and as JSON otherwise.
func decodeTree(path string, data []byte) (map[string]any, error) {
	tree := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, atlaserrors.NewFormatError(atlaserrors.ErrCodeConfigParse, "invalid YAML", err).WithPath(path)
		}
		if tree == nil {
			tree = map[string]any{}
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&tree); err != nil {
			return nil, atlaserrors.NewFormatError(atlaserrors.ErrCodeConfigParse, "invalid JSON", err).WithPath(path)
		}
		if dec.More() {
			return nil, atlaserrors.NewFormatError(atlaserrors.ErrCodeConfigParse, "invalid JSON",
				fmt.Errorf("trailing data after top-level object")).WithPath(path)
		}
	}
	return tree, nil
}

// SplitRunArgs partitions the server_run section. base holds the options the
// server consumes directly (host, port, debug, load_dotenv); extra holds every
// other option. Options whose value is nil are dropped from both.
func SplitRunArgs(run map[string]any) (base, extra map[string]any) {
	base = make(map[string]any)
	extra = make(map[string]any)
	for k, v := range run {
		if v == nil {
			continue
		}
		if runBaseKeys[k] {
			base[k] = v
		} else {
			extra[k] = v
		}
	}
	return base, extra
}
