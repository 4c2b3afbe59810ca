package parser

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/paulmach/orb"
)

func decodeImage(data []byte) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewError(domain.ErrFormat, "decode image", err)
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba, nil
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}

func DecodeTexture(data []byte, extent orb.Bound, level int) (*domain.Texture, error) {
	rgba, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	return &domain.Texture{
		Width:  rgba.Rect.Dx(),
		Height: rgba.Rect.Dy(),
		Pix:    rgba.Pix,
		Extent: extent,
		Level:  level,
	}, nil
}

// DecodeTerrainRGB reads heights packed into RGB channels:
// h = -10000 + (R*65536 + G*256 + B) * 0.1 metres.
func DecodeTerrainRGB(data []byte, extent orb.Bound, level int) (*domain.ElevationGrid, error) {
	rgba, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	values := make([]float32, w*h)
	for i := range values {
		p := rgba.Pix[i*4 : i*4+3]
		values[i] = float32(-10000 + float64(int(p[0])<<16|int(p[1])<<8|int(p[2]))*0.1)
	}
	return newGrid(w, h, values, extent, level), nil
}

// DecodeFloat32Grid reads a square little-endian float32 height field.
func DecodeFloat32Grid(data []byte, extent orb.Bound, level int) (*domain.ElevationGrid, error) {
	if len(data)%4 != 0 {
		return nil, domain.Errorf(domain.ErrFormat, "decode grid", "payload of %d bytes is not a float32 array", len(data))
	}
	n := len(data) / 4
	side := int(math.Sqrt(float64(n)))
	if side*side != n {
		return nil, domain.Errorf(domain.ErrFormat, "decode grid", "%d samples do not form a square grid", n)
	}
	values := make([]float32, n)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, values); err != nil {
		return nil, domain.NewError(domain.ErrFormat, "decode grid", err)
	}
	return newGrid(side, side, values, extent, level), nil
}

func newGrid(w, h int, values []float32, extent orb.Bound, level int) *domain.ElevationGrid {
	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	for _, v := range values {
		if math.IsNaN(float64(v)) {
			continue
		}
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if lo > hi {
		lo, hi = 0, 0
	}
	return &domain.ElevationGrid{
		Width:  w,
		Height: h,
		Values: values,
		Min:    lo,
		Max:    hi,
		Extent: extent,
		Level:  level,
	}
}
