package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	atlaserrors "github.com/conneroisu/atlas/internal/errors"
)

var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}

// validateConfig validates configuration values for security and correctness
func validateConfig(cfg *Config) error {
	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server_run: %w", err)
	}
	if err := validateSiteConfig(&cfg.Site); err != nil {
		return fmt.Errorf("server_init: %w", err)
	}
	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := validateBoundariesConfig(&cfg.Boundaries); err != nil {
		return fmt.Errorf("boundaries: %w", err)
	}
	return nil
}

func validateServerConfig(c *ServerConfig) error {
	// 0 lets the OS pick a port, which tests rely on.
	if c.Port < 0 || c.Port > 65535 {
		return atlaserrors.NewValidationError(atlaserrors.ErrCodeConfigInvalid,
			fmt.Sprintf("port %d is not in valid range 0-65535", c.Port))
	}

	for _, char := range dangerousChars {
		if strings.Contains(c.Host, char) {
			return atlaserrors.NewValidationError(atlaserrors.ErrCodeConfigInvalid,
				fmt.Sprintf("host contains dangerous character: %s", char))
		}
	}

	if (c.CertFile == "") != (c.KeyFile == "") {
		return atlaserrors.NewValidationError(atlaserrors.ErrCodeConfigInvalid,
			"certfile and keyfile must be set together")
	}
	return nil
}

func validateSiteConfig(c *SiteConfig) error {
	if err := validateRelativePath(c.TemplateFolder); err != nil {
		return fmt.Errorf("template_folder: %w", err)
	}
	if err := validateRelativePath(c.StaticFolder); err != nil {
		return fmt.Errorf("static_folder: %w", err)
	}
	if !strings.HasPrefix(c.StaticURLPath, "/") {
		return atlaserrors.NewValidationError(atlaserrors.ErrCodeConfigInvalid,
			fmt.Sprintf("static_url_path must start with '/': %q", c.StaticURLPath))
	}
	return nil
}

func validateLoggingConfig(c *LoggingConfig) error {
	switch c.Format {
	case "text", "json":
	default:
		return atlaserrors.NewValidationError(atlaserrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown log format %q (want text or json)", c.Format))
	}
	return nil
}

func validateBoundariesConfig(c *BoundariesConfig) error {
	for _, pattern := range c.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return atlaserrors.NewValidationError(atlaserrors.ErrCodeConfigInvalid,
				fmt.Sprintf("invalid exclude pattern %q", pattern))
		}
	}
	return nil
}

// validateRelativePath rejects paths that climb out of the data directory or
// carry shell metacharacters.
func validateRelativePath(path string) error {
	if path == "" {
		return atlaserrors.NewValidationError(atlaserrors.ErrCodeConfigInvalid, "empty path")
	}

	cleanPath := filepath.Clean(path)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return atlaserrors.NewValidationError(atlaserrors.ErrCodePathTraversal,
			fmt.Sprintf("path contains traversal: %s", path))
	}

	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return atlaserrors.NewValidationError(atlaserrors.ErrCodeConfigInvalid,
				fmt.Sprintf("path contains dangerous character: %s", char))
		}
	}
	return nil
}
