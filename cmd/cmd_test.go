package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/atlas/internal/basemap"
)

const squareGeoJSON = `{
  "type": "FeatureCollection",
  "atlas": {"title": "Square"},
  "features": [{
    "type": "Feature",
    "properties": {"NAME": "square"},
    "geometry": {"type": "Polygon", "coordinates": [[[0, 0], [1, 0], [1, 1], [0, 1], [0, 0]]]}
  }]
}`

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// run executes the CLI with args and returns what it printed on stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	out := &syncBuffer{}
	root.SetOut(out)
	root.SetErr(&syncBuffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		check   func(t *testing.T, out string)
		wantErr bool
	}{
		{
			name: "text",
			args: []string{"version"},
			check: func(t *testing.T, out string) {
				assert.True(t, strings.HasPrefix(out, "atlas "))
				assert.Contains(t, out, "Go: ")
				assert.Contains(t, out, "Platform: ")
			},
		},
		{
			name: "short",
			args: []string{"version", "--short"},
			check: func(t *testing.T, out string) {
				assert.Equal(t, 1, strings.Count(out, "\n"))
			},
		},
		{
			name: "json",
			args: []string{"version", "--format", "json"},
			check: func(t *testing.T, out string) {
				var info map[string]any
				require.NoError(t, json.Unmarshal([]byte(out), &info))
				assert.Contains(t, info, "version")
				assert.Contains(t, info, "go_version")
			},
		},
		{
			name:    "unknown format",
			args:    []string{"version", "--format", "xml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, "", tt.args...)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, out)
		})
	}
}

func TestInitCommand(t *testing.T) {
	dataDir := t.TempDir()

	out, err := run(t, "", "init", "--data-dir", dataDir)
	require.NoError(t, err)

	for _, path := range []string{
		"templates/index.html",
		"static/css/style.css",
		"config/server_config.json",
		"config/basemaps.json",
	} {
		assert.FileExists(t, filepath.Join(dataDir, path))
	}
	assert.DirExists(t, filepath.Join(dataDir, "static", "js"))
	assert.DirExists(t, filepath.Join(dataDir, "boundary"))
	assert.Contains(t, out, "atlas serve --data-dir "+dataDir)

	catalog, err := basemap.Load(filepath.Join(dataDir, "config", "basemaps.json"))
	require.NoError(t, err)
	assert.Equal(t, basemap.Default().Names(), catalog.Names())
}

func TestInitKeepsExistingConfig(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(dataDir, "config", "server_config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	require.NoError(t, os.WriteFile(configPath, []byte(`{"server_run": {"port": 7000}}`), 0o644))

	out, err := run(t, "", "init", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Kept existing "+configPath)
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"server_run": {"port": 7000}}`, string(data))

	_, err = run(t, "", "init", "--data-dir", dataDir, "--force")
	require.NoError(t, err)
	data, err = os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"port": 5000`)
}

func TestInitInteractive(t *testing.T) {
	dataDir := t.TempDir()
	answers := "0.0.0.0\n8080\n\n\n\n\n\n\n"

	_, err := run(t, answers, "init", "--data-dir", dataDir, "--interactive")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dataDir, "config", "server_config.json"))
	require.NoError(t, err)
	var tree map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &tree))
	assert.Equal(t, "0.0.0.0", tree["server_run"]["host"])
	assert.EqualValues(t, 8080, tree["server_run"]["port"])
}

func TestListBasemaps(t *testing.T) {
	dataDir := t.TempDir()
	defaults := basemap.Default()

	t.Run("table", func(t *testing.T) {
		out, err := run(t, "", "list", "basemaps", "--data-dir", dataDir)
		require.NoError(t, err)
		assert.Contains(t, out, "NAME")
		for _, name := range defaults.Names() {
			assert.Contains(t, out, name)
		}
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "", "list", "basemaps", "--data-dir", dataDir, "-f", "json")
		require.NoError(t, err)
		var entries []BasemapEntry
		require.NoError(t, json.Unmarshal([]byte(out), &entries))
		require.Len(t, entries, defaults.Len())
		for i, name := range defaults.Names() {
			assert.Equal(t, name, entries[i].Name)
			assert.Equal(t, name == defaults.View.Basemap, entries[i].Default)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := run(t, "", "list", "basemaps", "--data-dir", dataDir, "--format", "yaml")
		require.NoError(t, err)
		var entries []BasemapEntry
		require.NoError(t, yaml.Unmarshal([]byte(out), &entries))
		assert.Len(t, entries, defaults.Len())
	})

	t.Run("invalid catalog", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "basemaps.json"), []byte(`{
			"basemap_options": {"A": "https://a/{z}/{x}/{y}.png"},
			"basemap_attributions": {},
			"default_map_config": {"lat": 0, "lon": 0, "zoom": 2, "basemap": "A"}
		}`), 0o644))

		_, err := run(t, "", "list", "basemaps", "--data-dir", dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing attributions")
	})
}

func TestListBoundaries(t *testing.T) {
	dataDir := t.TempDir()
	boundaryDir := filepath.Join(dataDir, "boundary")
	require.NoError(t, os.MkdirAll(boundaryDir, 0o755))

	out, err := run(t, "", "list", "boundaries", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "No boundary files found.")

	require.NoError(t, os.WriteFile(filepath.Join(boundaryDir, "square.geojson"), []byte(squareGeoJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(boundaryDir, "bad.json"), []byte("[]"), 0o644))

	out, err = run(t, "", "list", "boundaries", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "square.geojson")
	assert.Contains(t, out, "Square")
	assert.Contains(t, out, "skipped bad.json")

	out, err = run(t, "", "list", "boundaries", "--data-dir", dataDir, "-f", "json")
	require.NoError(t, err)
	var resp struct {
		Boundaries []struct {
			Name     string `json:"name"`
			Features int    `json:"features"`
		} `json:"boundaries"`
		Problems []struct {
			Source string `json:"source"`
		} `json:"problems"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Boundaries, 1)
	assert.Equal(t, 1, resp.Boundaries[0].Features)
	require.Len(t, resp.Problems, 1)
	assert.Equal(t, "bad.json", resp.Problems[0].Source)
}

func TestListArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing target", []string{"list"}},
		{"unknown target", []string{"list", "layers"}},
		{"unknown format", []string{"list", "basemaps", "--format", "csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "", append(tt.args, "--data-dir", t.TempDir())...)
			assert.Error(t, err)
		})
	}
}

func TestValidateCommand(t *testing.T) {
	dataDir := t.TempDir()
	_, err := run(t, "", "init", "--data-dir", dataDir)
	require.NoError(t, err)
	boundaryDir := filepath.Join(dataDir, "boundary")
	require.NoError(t, os.WriteFile(filepath.Join(boundaryDir, "square.geojson"), []byte(squareGeoJSON), 0o644))

	out, err := run(t, "", "validate", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Boundaries: 1")
	assert.Contains(t, out, "✓ Validation passed")

	require.NoError(t, os.WriteFile(filepath.Join(boundaryDir, "broken.geojson"), []byte("{"), 0o644))

	out, err = run(t, "", "validate", "--data-dir", dataDir)
	require.ErrorIs(t, err, errValidationFailed)
	assert.Contains(t, out, "✗ broken.geojson")

	out, err = run(t, "", "validate", "--data-dir", dataDir, "--format", "json")
	require.ErrorIs(t, err, errValidationFailed)
	var report ValidationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Valid)
	assert.Equal(t, []string{"square.geojson"}, report.Boundaries)
	require.Len(t, report.Problems, 1)
	assert.Equal(t, "broken.geojson", report.Problems[0].Source)
}

func TestValidateMissingFilesAreWarnings(t *testing.T) {
	out, err := run(t, "", "validate", "--data-dir", t.TempDir())

	require.NoError(t, err)
	assert.Contains(t, out, "⚠ basemaps.json")
	assert.Contains(t, out, "⚠ index.html")
}

func TestValidateInvalidConfig(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(dataDir, "config", "server_config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	require.NoError(t, os.WriteFile(configPath, []byte(`{"logging": {"format": "xml"}}`), 0o644))

	out, err := run(t, "", "validate", "--data-dir", dataDir)

	require.ErrorIs(t, err, errValidationFailed)
	assert.Contains(t, out, "✗ configuration")
}

func TestLoadConfigPrecedence(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(dataDir, "config", "server_config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	require.NoError(t, os.WriteFile(configPath, []byte(`{"server_run": {"host": "10.0.0.1", "port": 7000}}`), 0o644))

	load := func(t *testing.T, args ...string) (string, int) {
		t.Helper()
		v := newViper()
		paths := &pathFlags{}
		cmd := &cobra.Command{}
		paths.register(cmd.Flags())
		cmd.Flags().Int("port", 5000, "")
		require.NoError(t, v.BindPFlag("server_run.port", cmd.Flags().Lookup("port")))
		require.NoError(t, cmd.Flags().Parse(append([]string{"--data-dir", dataDir}, args...)))

		cfg, err := loadConfig(cmd, &rootOptions{}, paths, v)
		require.NoError(t, err)
		return cfg.Server.Host, cfg.Server.Port
	}

	t.Run("file", func(t *testing.T) {
		host, port := load(t)
		assert.Equal(t, "10.0.0.1", host)
		assert.Equal(t, 7000, port)
	})

	t.Run("flag over file", func(t *testing.T) {
		_, port := load(t, "--port", "8081")
		assert.Equal(t, 8081, port)
	})

	t.Run("environment over file", func(t *testing.T) {
		t.Setenv("ATLAS_SERVER_RUN_HOST", "0.0.0.0")
		host, _ := load(t)
		assert.Equal(t, "0.0.0.0", host)
	})

	t.Run("config flag", func(t *testing.T) {
		other := filepath.Join(t.TempDir(), "other.yaml")
		require.NoError(t, os.WriteFile(other, []byte("server_run:\n  port: 9000\n"), 0o644))

		v := newViper()
		paths := &pathFlags{dataDir: dataDir}
		cfg, err := loadConfig(&cobra.Command{}, &rootOptions{configPath: other, logLevel: "debug"}, paths, v)
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestServeCommand(t *testing.T) {
	dataDir := t.TempDir()
	root := newRootCmd()
	out := &syncBuffer{}
	root.SetOut(out)
	root.SetErr(&syncBuffer{})
	root.SetArgs([]string{"serve", "--data-dir", dataDir, "--port", "0", "--no-watch"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Press Ctrl+C to stop")
	}, 10*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "Starting atlas at http://127.0.0.1:")
	assert.Contains(t, out.String(), "Available basemaps: "+strings.Join(basemap.Default().Names(), ", "))
	assert.FileExists(t, filepath.Join(dataDir, "templates", "index.html"))

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServeRejectsArguments(t *testing.T) {
	_, err := run(t, "", "serve", "extra")
	assert.Error(t, err)
}

func TestValidateRejectsUnsafeTileURL(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "config", "basemaps.json"), []byte(`{
		"basemap_options": {"Evil": "javascript:alert(1)"},
		"basemap_attributions": {"Evil": "x"},
		"default_map_config": {"lat": 0, "lon": 0, "zoom": 2, "basemap": "Evil"}
	}`), 0o644))

	out, err := run(t, "", "validate", "--data-dir", dataDir)

	require.ErrorIs(t, err, errValidationFailed)
	assert.Contains(t, out, `basemap "Evil"`)
}
