package dataio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/irfndi/celebrum-sim/internal/model"
	"github.com/irfndi/celebrum-sim/internal/utils"
)

// Posterior file formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// LoadPosterior reads posterior samples from a YAML or JSON file, chosen by
// extension. The document maps each parameter name to its draws:
//
//	intercept: [0.001, 0.0012]
//	sigma: [0.01, 0.011]
func LoadPosterior(path string) (model.PosteriorSamples, error) {
	format, err := formatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open posterior: %w", err)
	}
	defer f.Close()

	ps, err := DecodePosterior(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ps, nil
}

// DecodePosterior decodes and validates posterior samples in format.
func DecodePosterior(r io.Reader, format string) (model.PosteriorSamples, error) {
	var ps model.PosteriorSamples
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&ps); err != nil {
			return nil, fmt.Errorf("failed to decode posterior YAML: %w", err)
		}
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&ps); err != nil {
			return nil, fmt.Errorf("failed to decode posterior JSON: %w", err)
		}
	default:
		return nil, utils.NewValidationErrorf("unsupported posterior format %q", format)
	}

	if _, err := ps.NumDraws(); err != nil {
		return nil, err
	}
	return ps, nil
}

func formatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", utils.NewFieldError("posterior", "cannot infer format of %q", path)
	}
}
