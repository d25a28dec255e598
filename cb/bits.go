package cb

import (
	"errors"
)

var errEndOfData = errors.New("not enough data")

// bitReader reads big-endian bit fields from a byte slice, most significant bit first.
type bitReader struct {
	data   []byte
	offset int // in bits
}

func newBitReader(data []byte, byteOffset int) *bitReader {
	return &bitReader{data: data, offset: byteOffset * 8}
}

// read the next n bits (n <= 32).
func (r *bitReader) read(n int) (int, error) {
	if r.remaining() < n {
		return 0, errEndOfData
	}
	var result int
	for i := 0; i < n; i++ {
		b := r.data[r.offset/8]
		bit := (b >> (7 - uint(r.offset%8))) & 0x01
		result = result<<1 | int(bit)
		r.offset++
	}
	return result, nil
}

// skipToByte moves to the start of the next byte, unless already at a byte boundary.
func (r *bitReader) skipToByte() {
	if r.offset%8 != 0 {
		r.offset += 8 - r.offset%8
	}
}

func (r *bitReader) remaining() int {
	return len(r.data)*8 - r.offset
}

// unpackSeptets unpacks count GSM 7-bit characters from the packed representation according to [DCS] 6.1.2.1.
// The septets are packed least significant bit first.
func unpackSeptets(data []byte, count int) []byte {
	if max := len(data) * 8 / 7; count > max {
		count = max
	}
	result := make([]byte, count)
	for i := range result {
		bitOffset := i * 7
		byteOffset := bitOffset / 8
		shift := uint(bitOffset % 8)

		septet := data[byteOffset] >> shift
		if shift > 1 && byteOffset+1 < len(data) {
			septet |= data[byteOffset+1] << (8 - shift)
		}
		result[i] = septet & 0x7F
	}
	return result
}
