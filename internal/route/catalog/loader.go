package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/routebook/internal/route/domain"
)

type catalogFile struct {
	Routes []domain.Route `yaml:"routes"`
}

// Default returns the built-in route set.
func Default() []domain.Route {
	return []domain.Route{
		{
			ID:         1,
			Name:       "Jersey Inland",
			Type:       "Cycling",
			DistanceKM: 64.4,
			ElevationM: 541,
			Lat:        49.19364,
			Lon:        -2.12765,
			TrackFile:  "Jersey inland.gpx",
		},
		{
			ID:         2,
			Name:       "Lap of Jersey",
			Type:       "Cycling",
			DistanceKM: 68.9,
			ElevationM: 656,
			Lat:        49.19398,
			Lon:        -2.12872,
			TrackFile:  "Lap of Jersey.gpx",
		},
	}
}

// Decode reads a YAML catalog document of the form `routes: [...]`.
func Decode(r io.Reader) ([]domain.Route, error) {
	var doc catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty catalog", domain.ErrInvalidRoute)
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for _, r := range doc.Routes {
		if r.ID <= 0 || r.Name == "" {
			return nil, fmt.Errorf("%w: route requires positive id and name", domain.ErrInvalidRoute)
		}
	}
	return doc.Routes, nil
}

// LoadFile builds a catalog from a YAML file, or the default set when path is empty.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return New(Default())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	routes, err := Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return New(routes)
}
