// Package gibs addresses NASA GIBS WMTS tiles for the dashboard's map layers.
package gibs

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/i474232898/karwanua/internal/environment"
)

// BaseURL is the GIBS WMTS REST endpoint for Web Mercator tiles.
const BaseURL = "https://gibs.earthdata.nasa.gov/wmts/epsg3857/best"

// Layer names a selectable map overlay.
type Layer string

const (
	LayerTrueColor Layer = "truecolor"
	LayerNDVI      Layer = "ndvi"
)

// LayerSpec is the GIBS product behind a Layer.
type LayerSpec struct {
	Identifier string
	Format     string
	MaxZoom    maptile.Zoom
}

var layers = map[Layer]LayerSpec{
	LayerTrueColor: {Identifier: "MODIS_Terra_CorrectedReflectance_TrueColor", Format: "jpg", MaxZoom: 9},
	LayerNDVI:      {Identifier: "MODIS_Terra_NDVI_8Day", Format: "png", MaxZoom: 9},
}

// Layers returns the known layer names, sorted.
func Layers() []Layer {
	out := make([]Layer, 0, len(layers))
	for l := range layers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseLayer validates a layer name.
func ParseLayer(s string) (Layer, error) {
	l := Layer(s)
	if _, ok := layers[l]; !ok {
		return "", &environment.ValidationError{Field: "layer", Message: fmt.Sprintf("unknown layer %q", s)}
	}
	return l, nil
}

// Spec returns the GIBS product for l.
func Spec(l Layer) (LayerSpec, bool) {
	s, ok := layers[l]
	return s, ok
}

// TileURL builds the WMTS URL of tile t for layer on date (YYYY-MM-DD).
func TileURL(layer Layer, date string, t maptile.Tile) (string, error) {
	spec, ok := layers[layer]
	if !ok {
		return "", &environment.ValidationError{Field: "layer", Message: fmt.Sprintf("unknown layer %q", layer)}
	}
	if _, err := environment.ParseDate(date); err != nil || date == "" {
		return "", &environment.ValidationError{Field: "date", Message: fmt.Sprintf("%q is not YYYY-MM-DD", date)}
	}
	if t.Z > spec.MaxZoom {
		return "", &environment.ValidationError{Field: "zoom", Message: fmt.Sprintf("%d exceeds max zoom %d for %s", t.Z, spec.MaxZoom, layer)}
	}
	if n := uint32(1) << uint32(t.Z); t.X >= n || t.Y >= n {
		return "", &environment.ValidationError{Field: "tile", Message: fmt.Sprintf("%d/%d/%d is outside the tile grid", t.Z, t.X, t.Y)}
	}

	return fmt.Sprintf("%s/%s/default/%s/GoogleMapsCompatible_Level%d/%d/%d/%d.%s",
		BaseURL, spec.Identifier, date, spec.MaxZoom, t.Z, t.Y, t.X, spec.Format), nil
}

// Locate returns the tile containing lat/lon at zoom, with its URL.
func Locate(layer Layer, date string, lat, lon float64, zoom maptile.Zoom) (maptile.Tile, string, error) {
	if err := environment.ValidateCoordinates(lat, lon); err != nil {
		return maptile.Tile{}, "", err
	}
	t := maptile.At(orb.Point{lon, lat}, zoom)
	u, err := TileURL(layer, date, t)
	if err != nil {
		return maptile.Tile{}, "", err
	}
	return t, u, nil
}
