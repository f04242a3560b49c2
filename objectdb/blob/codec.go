// Package blob encodes the SIMPLE attributes of an object into the single
// serialized column of its row.
//
// Layout: [version uint8][compression uint8][payload]. For a compressed
// payload the first four bytes are the little-endian uncompressed size.
// The uncompressed payload is a MessagePack map of attribute name to value.
package blob

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/tinylib/msgp/msgp"

	oderrors "github.com/ministore/objectdb/objectdb/errors"
)

// Version is the current record format version.
const Version uint8 = 1

const (
	headerSize     = 2
	sizePrefixSize = 4
)

// DefaultMinSize is the smallest payload considered for compression.
const DefaultMinSize = 256

type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	}
	return "compression(" + strconv.Itoa(int(c)) + ")"
}

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	}
	return CompressionNone, fmt.Errorf("unknown blob compression %q", s)
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Codec encodes and decodes attribute records.
type Codec struct {
	Compression Compression
	MinSize     int
}

func DefaultCodec() Codec {
	return Codec{Compression: CompressionNone, MinSize: DefaultMinSize}
}

// Encode serializes values. Nil values are skipped. An empty map encodes
// to nil so rows without SIMPLE values store NULL.
func (c Codec) Encode(values map[string]any) ([]byte, error) {
	n := 0
	for _, v := range values {
		if v != nil {
			n++
		}
	}
	if n == 0 {
		return nil, nil
	}

	payload := msgp.AppendMapHeader(nil, uint32(n))
	for _, name := range sortedNames(values) {
		v := values[name]
		if v == nil {
			continue
		}
		payload = msgp.AppendString(payload, name)
		var err error
		payload, err = appendValue(payload, v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
	}

	minSize := c.MinSize
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	if c.Compression == CompressionNone || len(payload) < minSize {
		return append([]byte{Version, byte(CompressionNone)}, payload...), nil
	}

	var compressed []byte
	switch c.Compression {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(payload)))
		k, err := lz4.CompressBlock(payload, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		compressed = buf[:k]
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(payload, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("unsupported compression %s", c.Compression)
	}

	// Not worth it: store raw.
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(payload))*0.9 {
		return append([]byte{Version, byte(CompressionNone)}, payload...), nil
	}

	out := make([]byte, headerSize+sizePrefixSize+len(compressed))
	out[0] = Version
	out[1] = byte(c.Compression)
	binary.LittleEndian.PutUint32(out[headerSize:], uint32(len(payload)))
	copy(out[headerSize+sizePrefixSize:], compressed)
	return out, nil
}

// Decode restores the record. When want is non-nil only names it accepts
// are materialized; the rest are skipped without decoding.
func (c Codec) Decode(b []byte, want func(name string) bool) (map[string]any, error) {
	out := map[string]any{}
	if len(b) == 0 {
		return out, nil
	}
	if len(b) < headerSize {
		return nil, errors.New("blob record too short")
	}
	if b[0] != Version {
		return nil, oderrors.VersionMismatch(strconv.Itoa(int(b[0])), strconv.Itoa(int(Version)))
	}
	payload, err := decompress(Compression(b[1]), b[headerSize:])
	if err != nil {
		return nil, err
	}

	sz, o, err := msgp.ReadMapHeaderBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("read record header: %w", err)
	}
	for i := uint32(0); i < sz; i++ {
		var name string
		name, o, err = msgp.ReadStringBytes(o)
		if err != nil {
			return nil, fmt.Errorf("read attribute name: %w", err)
		}
		if want != nil && !want(name) {
			if o, err = msgp.Skip(o); err != nil {
				return nil, fmt.Errorf("skip attribute %q: %w", name, err)
			}
			continue
		}
		var v any
		v, o, err = readValue(o)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func decompress(c Compression, data []byte) ([]byte, error) {
	if c == CompressionNone {
		return data, nil
	}
	if len(data) < sizePrefixSize {
		return nil, errors.New("compressed blob record too short")
	}
	size := binary.LittleEndian.Uint32(data)
	data = data[sizePrefixSize:]
	switch c {
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint32(n) != size {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint32(len(out)) != size {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown blob compression %d", uint8(c))
}

func appendValue(b []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case int64:
		return msgp.AppendInt64(b, x), nil
	case int:
		return msgp.AppendInt64(b, int64(x)), nil
	case float64:
		return msgp.AppendFloat64(b, x), nil
	case string:
		return msgp.AppendString(b, x), nil
	case []byte:
		return msgp.AppendBytes(b, x), nil
	case bool:
		return msgp.AppendBool(b, x), nil
	case []string:
		b = msgp.AppendArrayHeader(b, uint32(len(x)))
		for _, s := range x {
			b = msgp.AppendString(b, s)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func readValue(b []byte) (any, []byte, error) {
	switch msgp.NextType(b) {
	case msgp.IntType:
		return msgp.ReadInt64Bytes(b)
	case msgp.UintType:
		u, o, err := msgp.ReadUint64Bytes(b)
		return int64(u), o, err
	case msgp.Float64Type:
		return msgp.ReadFloat64Bytes(b)
	case msgp.Float32Type:
		f, o, err := msgp.ReadFloat32Bytes(b)
		return float64(f), o, err
	case msgp.StrType:
		return msgp.ReadStringBytes(b)
	case msgp.BinType:
		return msgp.ReadBytesBytes(b, nil)
	case msgp.BoolType:
		return msgp.ReadBoolBytes(b)
	case msgp.ArrayType:
		n, o, err := msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return nil, nil, err
		}
		out := make([]string, 0, n)
		for i := uint32(0); i < n; i++ {
			var s string
			if s, o, err = msgp.ReadStringBytes(o); err != nil {
				return nil, nil, err
			}
			out = append(out, s)
		}
		return out, o, nil
	case msgp.NilType:
		o, err := msgp.ReadNilBytes(b)
		return nil, o, err
	}
	return nil, nil, fmt.Errorf("unsupported encoded type %s", msgp.NextType(b))
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
