package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"

	"cysearch/internal/domain"
)

// encodeEmbedding stores a vector as little-endian IEEE 754 float32 values
// without a length prefix.
func encodeEmbedding(vec domain.Embedding) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeEmbedding(b []byte) (domain.Embedding, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d (not multiple of 4)", len(b))
	}
	vec := make(domain.Embedding, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
