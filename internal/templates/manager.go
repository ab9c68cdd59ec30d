// Package templates manages the page template and default static assets kept
// in the atlas data directory.
package templates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"golang.org/x/net/html"

	atlaserrors "github.com/conneroisu/atlas/internal/errors"
	"github.com/conneroisu/atlas/internal/logging"
)

// File names inside the template and static directories.
const (
	IndexFile = "index.html"
	StyleFile = "css/style.css"
)

// Manager writes and loads the page template.
type Manager struct {
	DataDir     string
	TemplateDir string
	StaticDir   string

	logger logging.Logger
}

// Result reports what EnsureTemplates wrote.
type Result struct {
	IndexPath  string
	StylePath  string
	StyleAdded bool
}

// PageData is the data index.html is executed with.
type PageData struct {
	Title             string
	StaticURL         string
	MapHTML           template.HTML
	AvailableBasemaps []string
	SelectedBasemap   string
	LiveReload        bool
}

// NewManager creates a manager for the given directories. Empty template or
// static directories default to "templates" and "static" under dataDir.
func NewManager(dataDir, templateDir, staticDir string, logger logging.Logger) *Manager {
	if templateDir == "" {
		templateDir = filepath.Join(dataDir, "templates")
	}
	if staticDir == "" {
		staticDir = filepath.Join(dataDir, "static")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		DataDir:     dataDir,
		TemplateDir: templateDir,
		StaticDir:   staticDir,
		logger:      logger.WithComponent("templates"),
	}
}

// IndexPath returns the location of index.html.
func (m *Manager) IndexPath() string {
	return filepath.Join(m.TemplateDir, IndexFile)
}

// StylePath returns the location of the default stylesheet.
func (m *Manager) StylePath() string {
	return filepath.Join(m.StaticDir, filepath.FromSlash(StyleFile))
}

// EnsureTemplates creates the template and static directories, rewrites
// index.html and writes css/style.css unless one already exists.
func (m *Manager) EnsureTemplates() (*Result, error) {
	ctx := context.Background()

	dirs := []string{
		m.TemplateDir,
		m.StaticDir,
		filepath.Join(m.StaticDir, "css"),
		filepath.Join(m.StaticDir, "js"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, atlaserrors.NewIOError(atlaserrors.ErrCodeFileWrite, "cannot create directory", err).WithPath(dir)
		}
	}

	res := &Result{IndexPath: m.IndexPath(), StylePath: m.StylePath()}
	if err := writeAtomic(res.IndexPath, []byte(indexTemplate)); err != nil {
		return nil, err
	}
	m.logger.Info(ctx, "Template created", "path", res.IndexPath)

	if _, err := os.Stat(res.StylePath); err == nil {
		m.logger.Info(ctx, "Using existing CSS file", "path", res.StylePath)
		return res, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, atlaserrors.NewIOError(atlaserrors.ErrCodeFileRead, "cannot stat stylesheet", err).WithPath(res.StylePath)
	}

	if err := writeAtomic(res.StylePath, []byte(defaultCSS)); err != nil {
		return nil, err
	}
	res.StyleAdded = true
	m.logger.Info(ctx, "Default CSS file created", "path", res.StylePath)
	return res, nil
}

// Load parses index.html. The file must parse as an html/template and
// contain a <body> element.
func (m *Manager) Load() (*template.Template, error) {
	path := m.IndexPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, atlaserrors.NewIOError(atlaserrors.ErrCodeFileNotFound, "template not found", err).WithPath(path)
		}
		return nil, atlaserrors.NewIOError(atlaserrors.ErrCodeFileRead, "cannot read template", err).WithPath(path)
	}
	return Parse(path, data)
}

// Parse validates and parses template source. name is used in error
// messages.
func Parse(name string, data []byte) (*template.Template, error) {
	if !hasBody(data) {
		return nil, atlaserrors.NewFormatError(atlaserrors.ErrCodeTemplateInvalid,
			"template has no <body> element", nil).WithPath(name)
	}
	tmpl, err := template.New(filepath.Base(name)).Parse(string(data))
	if err != nil {
		return nil, atlaserrors.NewFormatError(atlaserrors.ErrCodeTemplateInvalid, "cannot parse template", err).WithPath(name)
	}
	return tmpl, nil
}

// Render executes tmpl into w.
func Render(w io.Writer, tmpl *template.Template, data PageData) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("execute %s: %w", tmpl.Name(), err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// hasBody reports whether the document has an explicit <body> start tag.
// html.Parse synthesizes a body for any input, so the token stream is
// checked instead.
func hasBody(data []byte) bool {
	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if strings.EqualFold(string(name), "body") {
				return true
			}
		}
	}
}

func writeAtomic(path string, data []byte) error {
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return atlaserrors.NewIOError(atlaserrors.ErrCodeFileWrite, "cannot create pending file", err).WithPath(path)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(data); err != nil {
		return atlaserrors.NewIOError(atlaserrors.ErrCodeFileWrite, "cannot write file", err).WithPath(path)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return atlaserrors.NewIOError(atlaserrors.ErrCodeFileWrite, "cannot replace file", err).WithPath(path)
	}
	return nil
}

// Default returns the built-in page template.
func Default() *template.Template {
	return template.Must(template.New(IndexFile).Parse(indexTemplate))
}
