package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TechnicianProfile supplies defaults for the report form. Configure with
// TECHNICIAN_PROFILE pointing at a YAML file such as:
//
//	nombre: Ana Pérez
//	colegiado: COAM-12345
//	notas: Visita realizada en presencia del propietario.
//	logo: logo.png
type TechnicianProfile struct {
	Name      string `yaml:"nombre"`
	LicenseID string `yaml:"colegiado"`
	Notes     string `yaml:"notas"`

	// LogoPath is resolved relative to the profile file.
	LogoPath string `yaml:"logo"`
}

// LoadProfile reads the technician profile at path. An empty path yields an
// empty profile.
func LoadProfile(path string) (*TechnicianProfile, error) {
	if path == "" {
		return &TechnicianProfile{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read TECHNICIAN_PROFILE: %w", err)
	}

	var p TechnicianProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse TECHNICIAN_PROFILE %s: %w", path, err)
	}
	if p.LogoPath != "" && !filepath.IsAbs(p.LogoPath) {
		p.LogoPath = filepath.Join(filepath.Dir(path), p.LogoPath)
	}
	return &p, nil
}
