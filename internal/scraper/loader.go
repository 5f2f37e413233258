package scraper

import (
	"embed"
	"log/slog"
)

//go:embed selectors.json
var embeddedSelectors embed.FS

// LoadConfig loads selectors from path when set, otherwise from the embedded
// selectors.json, and falls back to DefaultSelectors if both fail.
func LoadConfig(path string) SelectorConfig {
	if path != "" {
		sel, err := LoadSelectors(path)
		if err == nil {
			slog.Info("Loaded selectors from external file", "path", path)
			return sel
		}
		slog.Warn("Failed to load external selectors, trying embedded config", "path", path, "error", err)
	}

	data, err := embeddedSelectors.ReadFile("selectors.json")
	if err == nil {
		sel, parseErr := LoadSelectorsFromBytes(data)
		if parseErr == nil {
			return sel
		}
		slog.Warn("Embedded selectors failed to parse, using defaults", "error", parseErr)
	}

	return DefaultSelectors()
}
