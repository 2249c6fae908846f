// internal/strategy/presets.go
package strategy

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// PresetsFile represents the structure of the strategies YAML file
type PresetsFile struct {
	Strategies map[string]Patch `yaml:"strategies"`
}

// LoadPresets reads per-kind configuration overrides from a YAML file.
// Unknown kinds are skipped with a warning.
func LoadPresets(path string, logger *zap.Logger) (map[Kind]Patch, error) {
	if filepath.IsAbs(path) {
		logger.Debug("Using absolute path for strategies file", zap.String("path", path))
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParsePresets(data, logger)
}

// ParsePresets parses the YAML presets document.
func ParsePresets(data []byte, logger *zap.Logger) (map[Kind]Patch, error) {
	var file PresetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	presets := make(map[Kind]Patch, len(file.Strategies))
	for name, patch := range file.Strategies {
		kind, err := ParseKind(name)
		if err != nil {
			logger.Warn("Skipping preset for unknown strategy", zap.String("name", name))
			continue
		}
		if foreign := patch.foreign(kind); len(foreign) > 0 {
			logger.Warn("Preset has blocks for other strategies, ignoring them",
				zap.String("kind", string(kind)),
				zap.Strings("ignored", foreign))
		}
		presets[kind] = patch
	}

	logger.Info("Loaded strategy presets", zap.Int("count", len(presets)))
	return presets, nil
}
