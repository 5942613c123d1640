package mask

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var npyMagic = []byte("\x93NUMPY")

var (
	descrPattern = regexp.MustCompile(`'descr':\s*'([^']+)'`)
	shapePattern = regexp.MustCompile(`'shape':\s*\((\d+),\s*(\d+),?\s*\)`)
	orderPattern = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
)

// ErrNPY is returned for malformed or unsupported .npy payloads.
var ErrNPY = errors.New("mask: invalid npy data")

// EncodeNPY writes the mask as a version 1.0 .npy file holding a C-ordered
// little-endian int64 array of shape (Height, Width).
func EncodeNPY(m *Mask) []byte {
	header := fmt.Sprintf("{'descr': '<i8', 'fortran_order': False, 'shape': (%d, %d), }", m.Height, m.Width)

	// magic + version + header length + header + '\n' must align to 64 bytes
	preamble := len(npyMagic) + 2 + 2
	total := preamble + len(header) + 1
	if rem := total % 64; rem != 0 {
		header += string(bytes.Repeat([]byte(" "), 64-rem))
	}
	header += "\n"

	buf := bytes.NewBuffer(make([]byte, 0, preamble+len(header)+8*len(m.Labels)))
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	binary.Write(buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)

	var cell [8]byte
	for _, l := range m.Labels {
		binary.LittleEndian.PutUint64(cell[:], uint64(l))
		buf.Write(cell[:])
	}
	return buf.Bytes()
}

// DecodeNPY reads a 2-D .npy array of class indices. Supported dtypes are
// '<i8', '<i4' and '|u1' in C order.
func DecodeNPY(data []byte) (*Mask, error) {
	if len(data) < 10 || !bytes.Equal(data[:6], npyMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrNPY)
	}

	var headerLen, offset int
	switch data[6] {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:10]))
		offset = 10
	case 2, 3:
		if len(data) < 12 {
			return nil, fmt.Errorf("%w: truncated header", ErrNPY)
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:12]))
		offset = 12
	default:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrNPY, data[6])
	}
	if len(data) < offset+headerLen {
		return nil, fmt.Errorf("%w: truncated header", ErrNPY)
	}
	header := string(data[offset : offset+headerLen])
	body := data[offset+headerLen:]

	if m := orderPattern.FindStringSubmatch(header); m == nil || m[1] != "False" {
		return nil, fmt.Errorf("%w: fortran order not supported", ErrNPY)
	}
	descr := descrPattern.FindStringSubmatch(header)
	shape := shapePattern.FindStringSubmatch(header)
	if descr == nil || shape == nil {
		return nil, fmt.Errorf("%w: header %q", ErrNPY, header)
	}

	height, _ := strconv.Atoi(shape[1])
	width, _ := strconv.Atoi(shape[2])
	n := width * height

	var size int
	switch descr[1] {
	case "<i8":
		size = 8
	case "<i4":
		size = 4
	case "|u1":
		size = 1
	default:
		return nil, fmt.Errorf("%w: dtype %s", ErrNPY, descr[1])
	}
	if len(body) != n*size {
		return nil, fmt.Errorf("%w: %d data bytes for %dx%d %s", ErrNPY, len(body), height, width, descr[1])
	}

	m := New(width, height)
	for i := 0; i < n; i++ {
		var v int64
		switch size {
		case 8:
			v = int64(binary.LittleEndian.Uint64(body[i*8:]))
		case 4:
			v = int64(int32(binary.LittleEndian.Uint32(body[i*4:])))
		case 1:
			v = int64(body[i])
		}
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: label %d out of range", ErrNPY, v)
		}
		m.Labels[i] = uint8(v)
	}
	return m, nil
}
