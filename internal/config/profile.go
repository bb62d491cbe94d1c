package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// RenderProfile is the fixed render configuration applied to every project.
// Overrides are passed to Resolve's SetRenderSettings verbatim; TargetDir and
// CustomName are computed per project and always win over the profile.
type RenderProfile struct {
	Timeline  string                 `yaml:"timeline"`
	Preset    string                 `yaml:"preset"`
	Format    string                 `yaml:"format"`
	Codec     string                 `yaml:"codec"`
	Overrides map[string]interface{} `yaml:"overrides"`
}

// DefaultRenderProfile returns the IMF profile used when no file is given.
func DefaultRenderProfile() RenderProfile {
	return RenderProfile{
		Timeline: DefaultTimelineName,
		Preset:   DefaultRenderPreset,
		Format:   DefaultRenderFormat,
		Codec:    DefaultRenderCodec,
		Overrides: map[string]interface{}{
			"SelectAllFrames": true,
			"ExportVideo":     true,
			"ExportAudio":     true,
		},
	}
}

// LoadRenderProfile reads a YAML profile and merges it over base. Empty
// fields keep the base value; override keys are merged key by key.
func LoadRenderProfile(path string, base RenderProfile) (RenderProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read render profile: %w", err)
	}

	var file RenderProfile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return base, fmt.Errorf("failed to parse render profile %s: %w", path, err)
	}

	merged := base
	if file.Timeline != "" {
		merged.Timeline = file.Timeline
	}
	if file.Preset != "" {
		merged.Preset = file.Preset
	}
	if file.Format != "" {
		merged.Format = file.Format
	}
	if file.Codec != "" {
		merged.Codec = file.Codec
	}

	merged.Overrides = make(map[string]interface{}, len(base.Overrides)+len(file.Overrides))
	for k, v := range base.Overrides {
		merged.Overrides[k] = v
	}
	for k, v := range file.Overrides {
		merged.Overrides[k] = v
	}
	return merged, nil
}
