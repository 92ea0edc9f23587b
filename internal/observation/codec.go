package observation

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Encode writes s as zstd-compressed msgpack.
func Encode(w io.Writer, s *Set) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if err := msgpack.NewEncoder(zw).Encode(s); err != nil {
		zw.Close()
		return fmt.Errorf("encoding observations: %w", err)
	}
	return zw.Close()
}

// Decode reads a set written by Encode and validates it.
func Decode(r io.Reader) (*Set, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	var s Set
	if err := msgpack.NewDecoder(zr).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding observations: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
