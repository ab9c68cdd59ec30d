package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// SuggestionContext provides context for generating suggestions
type SuggestionContext struct {
	ConfigPath  string
	BasemapPath string
	BoundaryDir string
	Port        int
}

// ServerStartError generates suggestions for server startup failures
func ServerStartError(err error, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{}
	errStr := err.Error()

	if strings.Contains(errStr, "address already in use") {
		suggestions = append(suggestions,
			ErrorSuggestion{
				Title:       "Port already in use",
				Description: fmt.Sprintf("Port %d is already being used by another process", ctx.Port),
				Command:     fmt.Sprintf("lsof -i :%d", ctx.Port),
			},
			ErrorSuggestion{
				Title:       "Use a different port",
				Description: "Start the server on a different port",
				Command:     fmt.Sprintf("atlas serve --port %d", ctx.Port+1),
			},
		)
	}

	if strings.Contains(errStr, "permission denied") && ctx.Port < 1024 {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use unprivileged port",
			Description: "Ports below 1024 require root privileges",
			Command:     "atlas serve --port 5000",
		})
	}

	return suggestions
}

// ConfigurationError generates suggestions for configuration and catalog
// failures.
func ConfigurationError(err error, ctx *SuggestionContext) []ErrorSuggestion {
	var ae *AtlasError
	if !errors.As(err, &ae) {
		return nil
	}

	switch ae.Code {
	case ErrCodeMissingAttribution:
		return []ErrorSuggestion{{
			Title:       "Add an attribution to every basemap",
			Description: "Tile providers require credit to be shown on the map",
			Command:     "atlas list basemaps --basemap-file " + ctx.BasemapPath,
			Example:     `"OpenStreetMap": {"url": "https://tile.openstreetmap.org/{z}/{x}/{y}.png", "attribution": "© OpenStreetMap contributors"}`,
		}}
	case ErrCodeUnknownBasemap:
		return []ErrorSuggestion{{
			Title:       "Point default_basemap at a listed basemap",
			Description: "default_basemap must match one of the keys of basemap_options exactly",
			Command:     "atlas list basemaps --basemap-file " + ctx.BasemapPath,
		}}
	case ErrCodeConfigParse:
		return []ErrorSuggestion{{
			Title:       "Fix the file syntax",
			Description: "The file must be a single JSON object (or YAML mapping for .yaml files)",
			Command:     "atlas validate",
		}}
	case ErrCodeConfigInvalid, ErrCodePathTraversal:
		return []ErrorSuggestion{{
			Title:       "Check configuration values",
			Description: "Verify the server configuration file",
			Command:     "cat " + ctx.ConfigPath,
		}}
	}
	return nil
}

// FormatSuggestions formats suggestions into a user-friendly string
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var output strings.Builder
	output.WriteString(title + "\n\n")
	output.WriteString("Suggestions:\n")

	for i, suggestion := range suggestions {
		output.WriteString(fmt.Sprintf("  %d. %s\n", i+1, suggestion.Title))
		if suggestion.Description != "" {
			output.WriteString(fmt.Sprintf("     %s\n", suggestion.Description))
		}
		if suggestion.Command != "" {
			output.WriteString(fmt.Sprintf("     Run: %s\n", suggestion.Command))
		}
		if suggestion.Example != "" {
			output.WriteString(fmt.Sprintf("     Example: %s\n", suggestion.Example))
		}
		output.WriteString("\n")
	}

	return output.String()
}

// EnhancedError wraps an error with suggestions
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	return FormatSuggestions(e.Title, e.Suggestions)
}

// Unwrap returns the original error
func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

// NewEnhancedError creates a new enhanced error with suggestions
func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}
