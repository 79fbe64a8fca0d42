// Package mvt reads just enough of the Mapbox Vector Tile protobuf wire
// format to extract feature properties. Geometry is skipped entirely, so no
// protobuf code generation or geometry dependency is needed.
package mvt

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Protobuf wire types.
const (
	wireVarint  = 0
	wireFixed64 = 1
	wireBytes   = 2
	wireFixed32 = 5
)

var gzipMagic = []byte{0x1f, 0x8b}

// ExtractFeatureIDs returns the featureId property of every feature in every
// layer of the tile, in encounter order. Tiles may be gzip-compressed; IDs
// are stringified (string values as-is, integer values in decimal).
func ExtractFeatureIDs(tile []byte) ([]string, error) {
	if bytes.HasPrefix(tile, gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(tile))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer zr.Close()
		tile, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gunzip tile: %w", err)
		}
	}

	var ids []string
	pos := 0
	for pos < len(tile) {
		field, wire, next, err := readTag(tile, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		// Tile.layers is field 3.
		if field == 3 && wire == wireBytes {
			layerData, next, err := readBytes(tile, pos)
			if err != nil {
				return nil, fmt.Errorf("layer: %w", err)
			}
			pos = next

			features, err := decodeLayer(layerData)
			if err != nil {
				return nil, fmt.Errorf("layer: %w", err)
			}
			for _, props := range features {
				if id, ok := props["featureId"]; ok && id != nil {
					ids = append(ids, formatValue(id))
				}
			}
			continue
		}

		pos, err = skipField(tile, pos, wire)
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// decodeLayer collects the layer's keys, values and raw feature messages,
// then resolves each feature's tag pairs into a property map.
func decodeLayer(data []byte) ([]map[string]any, error) {
	var (
		keys         []string
		values       []any
		featuresData [][]byte
	)

	pos := 0
	for pos < len(data) {
		field, wire, next, err := readTag(data, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		switch {
		case field == 3 && wire == wireBytes: // keys
			key, next, err := readBytes(data, pos)
			if err != nil {
				return nil, fmt.Errorf("key: %w", err)
			}
			keys = append(keys, string(key))
			pos = next
		case field == 4 && wire == wireBytes: // values
			raw, next, err := readBytes(data, pos)
			if err != nil {
				return nil, fmt.Errorf("value: %w", err)
			}
			value, err := decodeValue(raw)
			if err != nil {
				return nil, err
			}
			values = append(values, value)
			pos = next
		case field == 2 && wire == wireBytes: // features
			featureData, next, err := readBytes(data, pos)
			if err != nil {
				return nil, fmt.Errorf("feature: %w", err)
			}
			featuresData = append(featuresData, featureData)
			pos = next
		default:
			pos, err = skipField(data, pos, wire)
			if err != nil {
				return nil, err
			}
		}
	}

	features := make([]map[string]any, 0, len(featuresData))
	for _, featureData := range featuresData {
		props, err := decodeFeature(featureData, keys, values)
		if err != nil {
			return nil, err
		}
		features = append(features, props)
	}
	return features, nil
}

// decodeFeature resolves a Feature message's packed tag pairs against the
// layer's key and value tables. Indices out of range drop that pair; a
// trailing unpaired index is ignored.
func decodeFeature(data []byte, keys []string, values []any) (map[string]any, error) {
	var tags []uint64

	pos := 0
	for pos < len(data) {
		field, wire, next, err := readTag(data, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		// Feature.tags is field 2, packed varints.
		if field == 2 && wire == wireBytes {
			packed, next, err := readBytes(data, pos)
			if err != nil {
				return nil, fmt.Errorf("tags: %w", err)
			}
			pos = next
			for inner := 0; inner < len(packed); {
				v, n, err := readVarint(packed, inner)
				if err != nil {
					return nil, fmt.Errorf("tags: %w", err)
				}
				tags = append(tags, v)
				inner = n
			}
			continue
		}

		pos, err = skipField(data, pos, wire)
		if err != nil {
			return nil, err
		}
	}

	props := make(map[string]any, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		keyIdx, valIdx := tags[i], tags[i+1]
		if keyIdx >= uint64(len(keys)) || valIdx >= uint64(len(values)) {
			continue
		}
		props[keys[keyIdx]] = values[valIdx]
	}
	return props, nil
}

// decodeValue decodes an MVT Value message: a oneof of string, float, double,
// int, uint, sint and bool. The first recognized field wins; a Value with no
// recognized field decodes to nil.
func decodeValue(data []byte) (any, error) {
	pos := 0
	for pos < len(data) {
		field, wire, next, err := readTag(data, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		switch {
		case field == 1 && wire == wireBytes: // string_value
			raw, _, err := readBytes(data, pos)
			if err != nil {
				return nil, fmt.Errorf("string value: %w", err)
			}
			return string(raw), nil
		case field == 2 && wire == wireFixed32: // float_value
			if pos+4 > len(data) {
				return nil, fmt.Errorf("float value: truncated at offset %d", pos)
			}
			bits := binary.LittleEndian.Uint32(data[pos:])
			return float64(math.Float32frombits(bits)), nil
		case field == 3 && wire == wireFixed64: // double_value
			if pos+8 > len(data) {
				return nil, fmt.Errorf("double value: truncated at offset %d", pos)
			}
			bits := binary.LittleEndian.Uint64(data[pos:])
			return math.Float64frombits(bits), nil
		case field == 4 && wire == wireVarint: // int_value
			v, _, err := readVarint(data, pos)
			if err != nil {
				return nil, err
			}
			return int64(v), nil
		case field == 5 && wire == wireVarint: // uint_value
			v, _, err := readVarint(data, pos)
			if err != nil {
				return nil, err
			}
			return v, nil
		case field == 6 && wire == wireVarint: // sint_value
			v, _, err := readVarint(data, pos)
			if err != nil {
				return nil, err
			}
			return unzigzag(v), nil
		case field == 7 && wire == wireVarint: // bool_value
			v, _, err := readVarint(data, pos)
			if err != nil {
				return nil, err
			}
			return v != 0, nil
		}

		pos, err = skipField(data, pos, wire)
		if err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func readTag(data []byte, pos int) (field int, wire int, next int, err error) {
	tag, next, err := readVarint(data, pos)
	if err != nil {
		return 0, 0, 0, err
	}
	return int(tag >> 3), int(tag & 0x7), next, nil
}

func readVarint(data []byte, pos int) (uint64, int, error) {
	var result uint64
	shift := 0
	for {
		if pos >= len(data) {
			return 0, 0, fmt.Errorf("varint: unexpected end of data at offset %d", pos)
		}
		b := data[pos]
		pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, pos, nil
		}
		shift += 7
		if shift > 63 {
			return 0, 0, fmt.Errorf("varint: overflow at offset %d", pos)
		}
	}
}

// readBytes reads a length-delimited field body starting at pos (the length
// varint itself).
func readBytes(data []byte, pos int) ([]byte, int, error) {
	length, pos, err := readVarint(data, pos)
	if err != nil {
		return nil, 0, err
	}
	end := pos + int(length)
	if length > uint64(len(data)) || end > len(data) {
		return nil, 0, fmt.Errorf("field of %d bytes overruns buffer at offset %d", length, pos)
	}
	return data[pos:end], end, nil
}

func skipField(data []byte, pos, wire int) (int, error) {
	switch wire {
	case wireVarint:
		_, next, err := readVarint(data, pos)
		return next, err
	case wireFixed64:
		if pos+8 > len(data) {
			return 0, fmt.Errorf("fixed64 field overruns buffer at offset %d", pos)
		}
		return pos + 8, nil
	case wireBytes:
		_, next, err := readBytes(data, pos)
		return next, err
	case wireFixed32:
		if pos+4 > len(data) {
			return 0, fmt.Errorf("fixed32 field overruns buffer at offset %d", pos)
		}
		return pos + 4, nil
	default:
		return 0, fmt.Errorf("unknown wire type %d at offset %d", wire, pos)
	}
}

func unzigzag(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}
