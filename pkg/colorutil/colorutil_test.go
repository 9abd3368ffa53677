package colorutil

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#FF8000")
	require.NoError(t, err)
	assert.Equal(t, RGB{255, 128, 0}, c)

	c, err = ParseHex("0f0")
	require.NoError(t, err)
	assert.Equal(t, Green, c)

	_, err = ParseHex("#12345")
	assert.ErrorIs(t, err, ErrInvalidHex)
	_, err = ParseHex("#zzzzzz")
	assert.ErrorIs(t, err, ErrInvalidHex)
}

func TestHexRoundTripThroughText(t *testing.T) {
	var c RGB
	require.NoError(t, c.UnmarshalText([]byte("#0000ff")))
	assert.Equal(t, Blue, c)

	b, err := c.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "#0000ff", string(b))
}

func TestOpacity(t *testing.T) {
	assert.Equal(t, uint8(51), AlphaFromOpacity(0.2))
	assert.Equal(t, uint8(255), AlphaFromOpacity(1.7))
	assert.Equal(t, uint8(0), AlphaFromOpacity(-1))
	assert.Equal(t, color.NRGBA{R: 255, A: 102}, Red.WithOpacity(0.4))
	assert.Equal(t, Yellow, FromColor(color.RGBA{255, 255, 0, 255}))
}
