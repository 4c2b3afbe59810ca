package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"format", NewError(ErrFormat, "decode", errors.New("truncated")), ErrFormat},
		{"wrapped range", fmt.Errorf("fetch: %w", ErrOutOfRange), ErrOutOfRange},
		{"conflict", NewError(ErrStateConflict, "apply", nil), ErrStateConflict},
		{"context", context.Canceled, ErrCancelled},
		{"deadline", context.DeadlineExceeded, ErrTransientFetch},
		{"unknown", errors.New("boom"), ErrTransientFetch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestCommandErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := NewError(ErrFormat, "decode texture", cause)

	assert.ErrorIs(t, err, ErrFormat)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTransientFetch)
	assert.Equal(t, "decode texture: format error: unexpected EOF", err.Error())
}

func TestZoomRangeClamp(t *testing.T) {
	z := ZoomRange{Min: 2, Max: 12}
	assert.Equal(t, 12, z.Clamp(15))
	assert.Equal(t, 2, z.Clamp(0))
	assert.Equal(t, 7, z.Clamp(7))
	assert.True(t, z.Contains(12))
	assert.False(t, z.Contains(13))
}

func TestParseLayerKind(t *testing.T) {
	for _, k := range []LayerKind{ColorLayer, ElevationLayer, GeometryLayer} {
		got, err := ParseLayerKind(k.String())
		assert.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseLayerKind("pointcloud")
	assert.Error(t, err)
}
