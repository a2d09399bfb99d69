package route

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"streetcar-eta/internal/geo"
)

//go:embed data/tempe-streetcar.yml
var tempeStreetcar []byte

type stopDef struct {
	ID   int     `yaml:"id" validate:"gt=0"`
	Name string  `yaml:"name" validate:"required"`
	Lat  float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng  float64 `yaml:"lng" validate:"gte=-180,lte=180"`
}

type lineDef struct {
	Stops []string     `yaml:"stops" validate:"required,min=1,dive,required"`
	Path  [][2]float64 `yaml:"path"`
}

type networkDef struct {
	Name       string    `yaml:"name" validate:"required"`
	Stops      []stopDef `yaml:"stops" validate:"required,min=1,dive"`
	Northbound lineDef   `yaml:"northbound"`
	Southbound lineDef   `yaml:"southbound"`
}

// Parse builds a Network from its YAML definition. Path points are written
// as [lat, lng] pairs.
func Parse(data []byte) (*Network, error) {
	var def networkDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decode network: %w", err)
	}
	if err := validator.New().Struct(def); err != nil {
		return nil, fmt.Errorf("validate network: %w", err)
	}
	stops := make([]Stop, len(def.Stops))
	for i, s := range def.Stops {
		stops[i] = Stop{ID: s.ID, Name: s.Name, Location: geo.Coordinate{Lat: s.Lat, Lng: s.Lng}}
	}
	return NewNetwork(def.Name, stops, def.Northbound.line(), def.Southbound.line())
}

func (l lineDef) line() Line {
	path := make([]geo.Coordinate, len(l.Path))
	for i, p := range l.Path {
		path[i] = geo.Coordinate{Lat: p[0], Lng: p[1]}
	}
	return Line{Stops: l.Stops, Path: path}
}

func LoadFile(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Default returns the built-in Tempe Streetcar network.
func Default() *Network {
	n, err := Parse(tempeStreetcar)
	if err != nil {
		panic(fmt.Sprintf("embedded network: %v", err))
	}
	return n
}
