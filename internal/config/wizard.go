package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Wizard interactively builds a server configuration file for `atlas init`.
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
	tree   map[string]any
}

// NewWizard creates a wizard that prompts on out and reads answers from in.
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
		tree:   Defaults(),
	}
}

// Run asks for every setting and returns the resulting configuration tree.
// Empty answers keep the default shown in brackets.
func (w *Wizard) Run() (map[string]any, error) {
	fmt.Fprintln(w.out, "atlas configuration")
	fmt.Fprintln(w.out, "===================")
	fmt.Fprintln(w.out)

	if err := w.configureServer(); err != nil {
		return nil, fmt.Errorf("server configuration failed: %w", err)
	}
	w.configureLogging()
	w.configureDevelopment()
	if err := w.configureRateLimit(); err != nil {
		return nil, fmt.Errorf("rate limit configuration failed: %w", err)
	}

	cfg := &Config{}
	run := w.section(SectionRun)
	cfg.Server.Host, _ = run["host"].(string)
	cfg.Server.Port, _ = run["port"].(int)
	logSection := w.section(SectionLogging)
	cfg.Logging.Format, _ = logSection["format"].(string)
	cfg.Site = SiteConfig{StaticURLPath: "/static", StaticFolder: "static", TemplateFolder: "templates"}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return w.tree, nil
}

func (w *Wizard) section(name string) map[string]any {
	return w.tree[name].(map[string]any)
}

func (w *Wizard) configureServer() error {
	fmt.Fprintln(w.out, "Server")
	fmt.Fprintln(w.out, "------")

	run := w.section(SectionRun)
	run["host"] = w.askString("Listen host", run["host"].(string))

	port, err := w.askInt("Listen port", run["port"].(int), 0, 65535)
	if err != nil {
		return err
	}
	run["port"] = port
	run["debug"] = w.askBool("Debug mode", false)

	fmt.Fprintln(w.out)
	return nil
}

func (w *Wizard) configureLogging() {
	logSection := w.section(SectionLogging)
	logSection["level"] = w.askChoice("Log level", []string{"debug", "info", "warn", "error"}, "info")
	logSection["format"] = w.askChoice("Log format", []string{"text", "json"}, "text")
}

func (w *Wizard) configureDevelopment() {
	dev := w.section(SectionDevelopment)
	dev["hot_reload"] = w.askBool("Reload the browser when boundary files change", true)
	if dev["hot_reload"].(bool) {
		for {
			answer := w.askString("Watch debounce", dev["watch_debounce"].(string))
			if _, err := time.ParseDuration(answer); err == nil {
				dev["watch_debounce"] = answer
				break
			}
			fmt.Fprintf(w.out, "Invalid duration %q (examples: 300ms, 1s)\n", answer)
		}
	}
}

func (w *Wizard) configureRateLimit() error {
	limit := w.section(SectionRateLimit)
	limit["enabled"] = w.askBool("Limit requests per client", false)
	if limit["enabled"].(bool) {
		rpm, err := w.askInt("Requests per minute", limit["requests_per_minute"].(int), 1, 1_000_000)
		if err != nil {
			return err
		}
		limit["requests_per_minute"] = rpm
	}
	return nil
}

func (w *Wizard) askString(prompt, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}

	input, _ := w.reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

func (w *Wizard) askInt(prompt string, defaultValue, min, max int) (int, error) {
	for {
		fmt.Fprintf(w.out, "%s [%d]: ", prompt, defaultValue)

		input, err := w.reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return defaultValue, nil
		}

		value, convErr := strconv.Atoi(input)
		switch {
		case convErr != nil:
			fmt.Fprintf(w.out, "Invalid number. Enter a number between %d and %d.\n", min, max)
		case value < min || value > max:
			fmt.Fprintf(w.out, "Out of range. Enter a number between %d and %d.\n", min, max)
		default:
			return value, nil
		}

		if err != nil {
			return 0, fmt.Errorf("%s: no valid answer before end of input", strings.ToLower(prompt))
		}
	}
}

func (w *Wizard) askBool(prompt string, defaultValue bool) bool {
	defaultStr := "n"
	if defaultValue {
		defaultStr = "y"
	}
	fmt.Fprintf(w.out, "%s [%s]: ", prompt, defaultStr)

	input, _ := w.reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return defaultValue
	}
	return input == "y" || input == "yes" || input == "true"
}

func (w *Wizard) askChoice(prompt string, choices []string, defaultValue string) string {
	for {
		fmt.Fprintf(w.out, "%s [%s] (options: %s): ", prompt, defaultValue, strings.Join(choices, ", "))

		input, err := w.reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return defaultValue
		}
		for _, choice := range choices {
			if strings.EqualFold(input, choice) {
				return choice
			}
		}

		fmt.Fprintf(w.out, "Invalid choice. Select from: %s\n", strings.Join(choices, ", "))
		if err != nil {
			return defaultValue
		}
	}
}

// MarshalTree renders a configuration tree as indented JSON.
func MarshalTree(tree map[string]any) ([]byte, error) {
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
