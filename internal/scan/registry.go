package scan

import (
	"embed"
	"fmt"
	"os"

	"github.com/depointe/govforecast/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the catalog of LRAF sources.
type Registry struct {
	Sources []Source `yaml:"sources"`
}

// LoadRegistry reads the embedded sources.yaml. The path parameter is a
// filesystem fallback for local development.
func LoadRegistry(path string) (*Registry, error) {
	data, err := sourcesYAML.ReadFile("config/sources.yaml")
	if err != nil {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	// Expand environment variables within the YAML content (e.g. ${API_KEY})
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, err
	}

	for _, src := range reg.Sources {
		if src.ID == "" || src.Agency == "" || src.AgencyCode == "" {
			return nil, fmt.Errorf("source %q missing id/agency/agency_code", src.ID)
		}
	}

	return &reg, nil
}

// Active returns the sources eligible for scanning, in catalog order.
func (r *Registry) Active() []Source {
	var out []Source
	for _, src := range r.Sources {
		if src.Active {
			out = append(out, src)
		}
	}
	return out
}

// Critical returns the active sources with critical priority.
func (r *Registry) Critical() []Source {
	var out []Source
	for _, src := range r.Sources {
		if src.Active && src.Priority == models.PriorityCritical {
			out = append(out, src)
		}
	}
	return out
}

// ByID returns the source with the given id, or nil.
func (r *Registry) ByID(id string) *Source {
	for i := range r.Sources {
		if r.Sources[i].ID == id {
			return &r.Sources[i]
		}
	}
	return nil
}
