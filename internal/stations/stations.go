package stations

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Station is a named map anchor games can be centered on.
type Station struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

type stationsFile struct {
	Stations []Station `yaml:"stations"`
}

// Table is the loaded station set keyed by name.
type Table map[string]Station

// Load reads the station table from a YAML file.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stations file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a station table from YAML bytes.
func Parse(data []byte) (Table, error) {
	var f stationsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse stations file: %w", err)
	}
	if len(f.Stations) == 0 {
		return nil, fmt.Errorf("stations file contains no stations")
	}

	table := make(Table, len(f.Stations))
	for _, s := range f.Stations {
		table[s.Name] = s
	}
	return table, nil
}

// Names returns every station name in the table.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	return names
}
