package mask

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromLogits_IdentitySize(t *testing.T) {
	// 2 classes on a 2x2 grid: class 1 wins on the diagonal.
	logits := []float32{
		1, 0, // class 0
		0, 1,
		0, 1, // class 1
		1, 0,
	}

	m, err := FromLogits(logits, 2, 2, 2, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, []uint8{0, 1, 1, 0}, m.Labels)
	assert.Equal(t, 1, m.At(1, 0))
}

func TestFromLogits_UpsamplesBilinear(t *testing.T) {
	// class 1 grows linearly left to right on a 1x2 grid, class 0 is flat.
	logits := []float32{
		0.5, 0.5,
		0, 1,
	}

	m, err := FromLogits(logits, 2, 1, 2, 1, 4)
	require.NoError(t, err)

	// half-pixel sampling on 4 outputs: src x = -0.25(clamped 0), 0.25, 0.75, 1.25(clamped to 1)
	// class 1 values 0, 0.25, 0.75, 1 against 0.5
	assert.Equal(t, []uint8{0, 0, 1, 1}, m.Labels)
}

func TestFromLogits_TieResolvesToLowestClass(t *testing.T) {
	m, err := FromLogits([]float32{1, 1, 1}, 3, 1, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 0, 0}, m.Labels)
}

func TestFromLogits_Errors(t *testing.T) {
	_, err := FromLogits([]float32{1, 2, 3}, 2, 1, 2, 4, 4)
	assert.True(t, errors.Is(err, ErrShape))

	_, err = FromLogits(nil, 0, 1, 1, 1, 1)
	assert.True(t, errors.Is(err, ErrShape))
}

func TestMask_ClassMaskAndCounts(t *testing.T) {
	m := &Mask{Width: 3, Height: 1, Labels: []uint8{0, 3, 3}}

	assert.Equal(t, []bool{false, true, true}, m.ClassMask(3))
	assert.Equal(t, map[int]int{0: 1, 3: 2}, m.PixelCounts())
}

func TestNPY_RoundTrip(t *testing.T) {
	m := &Mask{Width: 3, Height: 2, Labels: []uint8{0, 1, 2, 3, 2, 1}}

	data := EncodeNPY(m)

	require.True(t, bytes.HasPrefix(data, []byte("\x93NUMPY\x01\x00")))
	headerLen := int(binary.LittleEndian.Uint16(data[8:10]))
	assert.Zero(t, (10+headerLen)%64, "header must be 64-byte aligned")
	assert.Equal(t, byte('\n'), data[10+headerLen-1])
	assert.Contains(t, string(data[10:10+headerLen]), "'shape': (2, 3)")
	assert.Len(t, data, 10+headerLen+6*8)

	back, err := DecodeNPY(data)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestDecodeNPY_Uint8(t *testing.T) {
	header := "{'descr': '|u1', 'fortran_order': False, 'shape': (1, 2), }"
	header += string(bytes.Repeat([]byte(" "), 64-(10+len(header)+1)%64)) + "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY\x01\x00")
	binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	buf.Write([]byte{2, 1})

	m, err := DecodeNPY(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []uint8{2, 1}, m.Labels)
}

func TestDecodeNPY_Rejects(t *testing.T) {
	_, err := DecodeNPY([]byte("not numpy"))
	assert.True(t, errors.Is(err, ErrNPY))

	good := EncodeNPY(New(2, 2))
	_, err = DecodeNPY(good[:len(good)-3])
	assert.True(t, errors.Is(err, ErrNPY), "truncated body")
}
