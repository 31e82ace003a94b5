package gibs

import (
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileURL_TrueColor(t *testing.T) {
	u, err := TileURL(LayerTrueColor, "2024-06-01", maptile.New(3, 2, 2))
	require.NoError(t, err)
	assert.Equal(t,
		"https://gibs.earthdata.nasa.gov/wmts/epsg3857/best/MODIS_Terra_CorrectedReflectance_TrueColor/default/2024-06-01/GoogleMapsCompatible_Level9/2/2/3.jpg",
		u)
}

func TestTileURL_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		layer Layer
		date  string
		tile  maptile.Tile
	}{
		{"unknown layer", Layer("radar"), "2024-06-01", maptile.New(0, 0, 0)},
		{"bad date", LayerNDVI, "06/01/2024", maptile.New(0, 0, 0)},
		{"missing date", LayerNDVI, "", maptile.New(0, 0, 0)},
		{"zoom too deep", LayerNDVI, "2024-06-01", maptile.New(0, 0, 10)},
		{"outside grid", LayerNDVI, "2024-06-01", maptile.New(4, 0, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TileURL(tt.layer, tt.date, tt.tile)
			assert.Error(t, err)
		})
	}
}

func TestLocate_Jakarta(t *testing.T) {
	tile, u, err := Locate(LayerNDVI, "2024-06-01", -6.2088, 106.8456, 5)
	require.NoError(t, err)
	assert.Equal(t, maptile.Zoom(5), tile.Z)
	// Jakarta sits just south of the equator in the eastern hemisphere.
	assert.Equal(t, uint32(25), tile.X)
	assert.Equal(t, uint32(16), tile.Y)
	assert.Contains(t, u, "MODIS_Terra_NDVI_8Day")
	assert.Contains(t, u, "/5/16/25.png")
}

func TestLocate_InvalidCoordinates(t *testing.T) {
	_, _, err := Locate(LayerNDVI, "2024-06-01", 91, 0, 3)
	assert.Error(t, err)
}

func TestParseLayer(t *testing.T) {
	l, err := ParseLayer("ndvi")
	require.NoError(t, err)
	assert.Equal(t, LayerNDVI, l)

	_, err = ParseLayer("NDVI")
	assert.Error(t, err)

	assert.Equal(t, []Layer{LayerNDVI, LayerTrueColor}, Layers())
}
