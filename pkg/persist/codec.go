// Package persist provides codecs and file persistence for models, domain-tree
// leaves and verification reports.
package persist

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
)

// File extensions for supported codecs.
const (
	jsonExtension = ".json"
	gobExtension  = ".gob"
	lz4Extension  = ".lz4"
)

// Default indentation for pretty-printed JSON.
const defaultIndent = "  "

// lz4HeaderSize is the size of the uncompressed-length prefix of an LZ4 frame.
const lz4HeaderSize = 4

// maxLZ4Payload bounds the uncompressed size accepted by LZ4Codec.Decode.
const maxLZ4Payload = 1 << 30

// ErrCorruptFrame indicates an LZ4 payload that cannot be decompressed.
var ErrCorruptFrame = errors.New("corrupt lz4 frame")

// Codec defines how state is serialized and deserialized.
type Codec interface {
	// Encode writes the state to the writer.
	Encode(w io.Writer, state any) error
	// Decode reads the state from the reader.
	Decode(r io.Reader, state any) error
	// Extension returns the file extension for this codec (e.g., ".json", ".gob").
	Extension() string
}

// JSONCodec encodes state as JSON.
type JSONCodec struct {
	// Indent is the indentation string; empty means compact output.
	Indent string
}

// NewJSONCodec returns a JSON codec with two-space indentation.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	enc := json.NewEncoder(w)
	if c.Indent != "" {
		enc.SetIndent("", c.Indent)
	}

	if err := enc.Encode(state); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	if err := json.NewDecoder(r).Decode(state); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.
func (c *JSONCodec) Extension() string { return jsonExtension }

// GobCodec encodes state with encoding/gob.
type GobCodec struct{}

// NewGobCodec returns a gob codec.
func NewGobCodec() *GobCodec {
	return &GobCodec{}
}

// Encode implements Codec.
func (c *GobCodec) Encode(w io.Writer, state any) error {
	if err := gob.NewEncoder(w).Encode(state); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}

	return nil
}

// Decode implements Codec.
func (c *GobCodec) Decode(r io.Reader, state any) error {
	if err := gob.NewDecoder(r).Decode(state); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}

	return nil
}

// Extension implements Codec.
func (c *GobCodec) Extension() string { return gobExtension }

// LZ4Codec compresses the output of an inner codec into a single LZ4 block
// prefixed with the little-endian uint32 uncompressed length.
type LZ4Codec struct {
	Inner Codec
}

// NewLZ4Codec wraps inner. A nil inner selects compact JSON.
func NewLZ4Codec(inner Codec) *LZ4Codec {
	if inner == nil {
		inner = &JSONCodec{}
	}

	return &LZ4Codec{Inner: inner}
}

// Encode implements Codec.
func (c *LZ4Codec) Encode(w io.Writer, state any) error {
	var raw bytes.Buffer

	if err := c.Inner.Encode(&raw, state); err != nil {
		return err
	}

	frame := make([]byte, lz4HeaderSize+lz4.CompressBlockBound(raw.Len()))
	binary.LittleEndian.PutUint32(frame, uint32(raw.Len()))

	n, err := lz4.CompressBlock(raw.Bytes(), frame[lz4HeaderSize:], nil)
	if err != nil {
		return fmt.Errorf("lz4 compress: %w", err)
	}

	if n == 0 && raw.Len() > 0 {
		return fmt.Errorf("lz4 compress: %w", ErrCorruptFrame)
	}

	if _, err := w.Write(frame[:lz4HeaderSize+n]); err != nil {
		return fmt.Errorf("lz4 write: %w", err)
	}

	return nil
}

// Decode implements Codec.
func (c *LZ4Codec) Decode(r io.Reader, state any) error {
	frame, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("lz4 read: %w", err)
	}

	if len(frame) < lz4HeaderSize {
		return fmt.Errorf("%w: short header", ErrCorruptFrame)
	}

	size := binary.LittleEndian.Uint32(frame)
	if size > maxLZ4Payload {
		return fmt.Errorf("%w: payload of %d bytes", ErrCorruptFrame, size)
	}

	raw := make([]byte, size)

	n, err := lz4.UncompressBlock(frame[lz4HeaderSize:], raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptFrame, err)
	}

	if n != int(size) {
		return fmt.Errorf("%w: got %d of %d bytes", ErrCorruptFrame, n, size)
	}

	return c.Inner.Decode(bytes.NewReader(raw), state)
}

// Extension implements Codec.
func (c *LZ4Codec) Extension() string { return c.Inner.Extension() + lz4Extension }

// Marshal encodes state into memory.
func Marshal(codec Codec, state any) ([]byte, error) {
	var buf bytes.Buffer

	if err := codec.Encode(&buf, state); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal decodes state from memory.
func Unmarshal(codec Codec, data []byte, state any) error {
	return codec.Decode(bytes.NewReader(data), state)
}

// SaveState writes state to dir/basename plus the codec extension.
func SaveState(dir, basename string, codec Codec, state any) error {
	path := filepath.Join(dir, basename+codec.Extension())

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}

	if err := codec.Encode(file, state); err != nil {
		file.Close()

		return fmt.Errorf("encode state: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}

	return nil
}

// LoadState reads dir/basename plus the codec extension into state, which
// must be a pointer.
func LoadState(dir, basename string, codec Codec, state any) error {
	path := filepath.Join(dir, basename+codec.Extension())

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	if err := codec.Decode(file, state); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}
