package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"skyguard/internal/types"
)

// locationsFile is the YAML document read from MONITOR_LOCATIONS_FILE:
//
//	locations:
//	  - name: Headquarters
//	    lat: 40.7128
//	    lon: -74.0060
type locationsFile struct {
	Locations []types.Location `yaml:"locations"`
}

// loadLocations returns the monitored locations. The file takes precedence
// over the inline list. An empty result is valid; the evaluator then has
// nothing to do.
func loadLocations(cfg WeatherConfig, readFile func(string) ([]byte, error)) ([]types.Location, error) {
	var locations []types.Location

	switch {
	case cfg.LocationsFile != "":
		data, err := readFile(cfg.LocationsFile)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", cfg.LocationsFile, err)
		}
		var doc locationsFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", cfg.LocationsFile, err)
		}
		locations = doc.Locations
	case cfg.LocationsRaw != "":
		parsed, err := ParseLocations(cfg.LocationsRaw)
		if err != nil {
			return nil, err
		}
		locations = parsed
	}

	seen := make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		if strings.TrimSpace(loc.Name) == "" {
			return nil, fmt.Errorf("location at %.4f,%.4f has no name", loc.Lat, loc.Lon)
		}
		if err := types.ValidateCoordinates(loc.Lat, loc.Lon); err != nil {
			return nil, fmt.Errorf("location %q: %w", loc.Name, err)
		}
		if _, dup := seen[loc.Name]; dup {
			return nil, fmt.Errorf("duplicate location name %q", loc.Name)
		}
		seen[loc.Name] = struct{}{}
	}
	return locations, nil
}

// ParseLocations parses the inline "name:lat:lon;name:lat:lon" format.
func ParseLocations(raw string) ([]types.Location, error) {
	var out []types.Location
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		// Split from the right so names may contain colons.
		lonIdx := strings.LastIndex(item, ":")
		if lonIdx < 0 {
			return nil, fmt.Errorf("location %q: want name:lat:lon", item)
		}
		latIdx := strings.LastIndex(item[:lonIdx], ":")
		if latIdx < 0 {
			return nil, fmt.Errorf("location %q: want name:lat:lon", item)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(item[latIdx+1:lonIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("location %q: bad latitude: %w", item, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(item[lonIdx+1:]), 64)
		if err != nil {
			return nil, fmt.Errorf("location %q: bad longitude: %w", item, err)
		}
		out = append(out, types.Location{
			Name: strings.TrimSpace(item[:latIdx]),
			Lat:  lat,
			Lon:  lon,
		})
	}
	return out, nil
}
