package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"vulnforge/internal/types"
)

// manifestEntry is one target declaration in a YAML manifest. The
// contract source is referenced by path and snapshotted at load time, so
// sessions see a stable copy even if the file changes mid-run.
type manifestEntry struct {
	ID            string `yaml:"id"`
	Contract      string `yaml:"contract"`
	Vulnerability string `yaml:"vulnerability"`
	Severity      string `yaml:"severity"`
	SourcePath    string `yaml:"source"`
	ABIPath       string `yaml:"abi,omitempty"`
}

type manifest struct {
	Targets []manifestEntry `yaml:"targets"`
}

// LoadManifest parses a YAML targets manifest and resolves each entry
// into a Target with its source snapshot loaded. Relative paths in the
// manifest resolve against the manifest's own directory.
func LoadManifest(path string) ([]types.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Targets) == 0 {
		return nil, fmt.Errorf("manifest %s declares no targets", path)
	}

	baseDir := filepath.Dir(path)
	seen := make(map[string]bool, len(m.Targets))
	targets := make([]types.Target, 0, len(m.Targets))

	for i, entry := range m.Targets {
		if entry.ID == "" {
			return nil, fmt.Errorf("target %d: id required", i)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("duplicate target id %q", entry.ID)
		}
		seen[entry.ID] = true

		if entry.Vulnerability == "" {
			return nil, fmt.Errorf("target %q: vulnerability required", entry.ID)
		}
		if entry.SourcePath == "" {
			return nil, fmt.Errorf("target %q: source required", entry.ID)
		}

		sourcePath := resolve(baseDir, entry.SourcePath)
		source, err := os.ReadFile(sourcePath)
		if err != nil {
			return nil, fmt.Errorf("target %q: read source: %w", entry.ID, err)
		}

		severity := types.Severity(entry.Severity)
		if severity == "" {
			severity = types.SeverityMedium
		}
		switch severity {
		case types.SeverityLow, types.SeverityMedium, types.SeverityHigh, types.SeverityCritical:
		default:
			return nil, fmt.Errorf("target %q: unknown severity %q", entry.ID, entry.Severity)
		}

		target := types.Target{
			ID:            entry.ID,
			ContractName:  entry.Contract,
			Vulnerability: entry.Vulnerability,
			Severity:      severity,
			Source:        string(source),
		}
		if entry.ABIPath != "" {
			target.ABIPath = resolve(baseDir, entry.ABIPath)
		}
		targets = append(targets, target)
	}

	return targets, nil
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
