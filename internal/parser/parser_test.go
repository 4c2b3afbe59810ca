package parser

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var extent = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}

func encodePNG(t *testing.T, pixels ...color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, len(pixels), 1))
	for x, c := range pixels {
		img.SetRGBA(x, 0, c)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeTexture(t *testing.T) {
	data := encodePNG(t, color.RGBA{255, 0, 0, 255}, color.RGBA{0, 0, 128, 128})

	tex, err := DecodeTexture(data, extent, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, tex.Width)
	assert.Equal(t, 1, tex.Height)
	assert.Equal(t, []uint8{255, 0, 0, 255}, tex.Pix[:4])
	assert.Equal(t, 7, tex.Level)
	assert.Equal(t, extent, tex.Extent)
}

func TestDecodeTerrainRGB(t *testing.T) {
	sea := color.RGBA{1, 134, 160, 255}  // 100000 -> 0 m
	peak := color.RGBA{1, 157, 152, 255} // 105880 -> 588 m
	grid, err := DecodeTerrainRGB(encodePNG(t, sea, peak), extent, 3)
	require.NoError(t, err)

	assert.InDelta(t, 0, grid.Values[0], 0.01)
	assert.InDelta(t, 588, grid.Values[1], 0.01)
	assert.InDelta(t, 0, grid.Min, 0.01)
	assert.InDelta(t, 588, grid.Max, 0.01)
}

func TestDecodeFloat32Grid(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []float32{1, -2, 3.5, 4}))

	grid, err := DecodeFloat32Grid(buf.Bytes(), extent, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, grid.Width)
	assert.Equal(t, float32(-2), grid.Min)
	assert.Equal(t, float32(4), grid.Max)

	_, err = DecodeFloat32Grid(buf.Bytes()[:12], extent, 0)
	assert.ErrorIs(t, err, domain.ErrFormat)
}

func TestMalformedPayloadsAreFormatErrors(t *testing.T) {
	html := []byte("<html>502 Bad Gateway</html>")
	truncated := []byte{0x1a, 0xff, 0xff, 0xff, 0x0f, 0x01}

	for _, tc := range []struct {
		opts Options
		data []byte
	}{
		{Options{Kind: domain.ColorLayer, Format: "png"}, html},
		{Options{Kind: domain.ElevationLayer, Format: "terrain-rgb"}, html},
		{Options{Kind: domain.GeometryLayer, Format: "geojson"}, html},
		{Options{Kind: domain.GeometryLayer, Format: "mvt"}, truncated},
		{Options{Kind: domain.GeometryLayer, Format: "shapefile"}, html},
	} {
		_, err := Parse(tc.data, tc.opts)
		assert.ErrorIs(t, err, domain.ErrFormat, "%s/%s", tc.opts.Kind, tc.opts.Format)
	}
}

func TestEmptyPayloadIsOutOfRange(t *testing.T) {
	_, err := Parse(nil, Options{Kind: domain.ColorLayer, Format: "png"})
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestDecodeGeoJSON(t *testing.T) {
	fc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[10,20]}},
		{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[0,0],[50,50]]}}]}`
	set, err := DecodeGeoJSON([]byte(fc), extent)
	require.NoError(t, err)
	require.Len(t, set.Features, 2)
	assert.Equal(t, orb.Point{10, 20}, set.Features[0].Geometry)

	single := `{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}}`
	set, err = DecodeGeoJSON([]byte(single), extent)
	require.NoError(t, err)
	assert.Len(t, set.Features, 1)
}

func TestDecodeMVTPlacesFeaturesInExtent(t *testing.T) {
	layers := mvt.Layers{&mvt.Layer{
		Name:     "roads",
		Version:  2,
		Extent:   4096,
		Features: []*geojson.Feature{geojson.NewFeature(orb.Point{2048, 1024})},
	}}
	data, err := mvt.Marshal(layers)
	require.NoError(t, err)

	set, err := Parse(data, Options{Kind: domain.GeometryLayer, Format: "mvt", Extent: extent})
	require.NoError(t, err)
	fs := set.(*domain.FeatureSet)
	require.Len(t, fs.Features, 1)
	assert.Equal(t, orb.Point{50, 75}, fs.Features[0].Geometry)
	assert.Equal(t, "roads", fs.Features[0].Properties["layer"])
}
