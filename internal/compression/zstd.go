// Package compression frames persisted asset bytes, zstd-compressing them
// when that pays off.
//
// Framed layout: [tag 1B][payload]. Tag 0x00 is raw, 0x01 is zstd.
package compression

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const (
	tagRaw  byte = 0x00
	tagZstd byte = 0x01

	// minCompressSize is the smallest payload worth running through zstd.
	minCompressSize = 128
)

// ErrCorrupt is returned by Decode when a framed value cannot be read back.
var ErrCorrupt = errors.New("compression: corrupt frame")

type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

// NewCompressor builds a compressor. Level 1 is fastest, 3 compresses best;
// anything else uses the zstd default. A disabled compressor still frames
// values so that Decode can read either kind.
func NewCompressor(level int, enabled bool) (*Compressor, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return &Compressor{decoder: decoder}, nil
	}

	var encoderLevel zstd.EncoderLevel
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
	case 3:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		decoder.Close()
		return nil, err
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
		enabled: true,
	}, nil
}

// Encode frames data, compressing it if that makes it smaller.
func (c *Compressor) Encode(data []byte) []byte {
	if c.enabled && len(data) >= minCompressSize {
		out := make([]byte, 1, len(data)+1)
		out[0] = tagZstd
		out = c.encoder.EncodeAll(data, out)
		if len(out) < len(data)+1 {
			return out
		}
	}

	out := make([]byte, len(data)+1)
	out[0] = tagRaw
	copy(out[1:], data)
	return out
}

// Decode reverses Encode. Anything it cannot read yields ErrCorrupt.
func (c *Compressor) Decode(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrCorrupt)
	}

	switch framed[0] {
	case tagRaw:
		out := make([]byte, len(framed)-1)
		copy(out, framed[1:])
		return out, nil
	case tagZstd:
		out, err := c.decoder.DecodeAll(framed[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrCorrupt, framed[0])
	}
}

func (c *Compressor) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}
