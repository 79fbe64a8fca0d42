package mvt

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

// Wire-format builders for test tiles.

func appendVarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

func appendTag(b []byte, field, wire int) []byte {
	return appendVarint(b, uint64(field)<<3|uint64(wire))
}

func appendBytesField(b []byte, field int, body []byte) []byte {
	b = appendTag(b, field, wireBytes)
	b = appendVarint(b, uint64(len(body)))
	return append(b, body...)
}

func appendVarintField(b []byte, field int, v uint64) []byte {
	b = appendTag(b, field, wireVarint)
	return appendVarint(b, v)
}

func stringValue(s string) []byte {
	return appendBytesField(nil, 1, []byte(s))
}

func floatValue(f float32) []byte {
	b := appendTag(nil, 2, wireFixed32)
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
}

func doubleValue(f float64) []byte {
	b := appendTag(nil, 3, wireFixed64)
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(f))
}

func intValue(v uint64) []byte {
	return appendVarintField(nil, 4, v)
}

func uintValue(v uint64) []byte {
	return appendVarintField(nil, 5, v)
}

func sintValue(v int64) []byte {
	return appendVarintField(nil, 6, uint64(v<<1)^uint64(v>>63))
}

func feature(tags ...uint64) []byte {
	var packed []byte
	for _, tag := range tags {
		packed = appendVarint(packed, tag)
	}
	// Realistic features also carry an id and geometry; the decoder must
	// skip both.
	f := appendVarintField(nil, 1, 42)           // id
	f = appendBytesField(f, 2, packed)           // tags
	f = appendVarintField(f, 3, 2)               // type = LINESTRING
	f = appendBytesField(f, 4, []byte{9, 0, 16}) // geometry
	return f
}

func layer(keys []string, values [][]byte, features ...[]byte) []byte {
	l := appendBytesField(nil, 1, []byte("winter-network")) // name
	for _, f := range features {
		l = appendBytesField(l, 2, f)
	}
	for _, k := range keys {
		l = appendBytesField(l, 3, []byte(k))
	}
	for _, v := range values {
		l = appendBytesField(l, 4, v)
	}
	return appendVarintField(l, 15, 2) // version
}

func tile(layers ...[]byte) []byte {
	var t []byte
	for _, l := range layers {
		t = appendBytesField(t, 3, l)
	}
	return t
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractFeatureIDs_StringID(t *testing.T) {
	data := tile(layer(
		[]string{"featureId", "name"},
		[][]byte{stringValue("seg-001"), stringValue("Ring Road")},
		feature(0, 0, 1, 1),
	))

	ids, err := ExtractFeatureIDs(data)
	if err != nil {
		t.Fatalf("ExtractFeatureIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "seg-001" {
		t.Errorf("ids = %v, want [seg-001]", ids)
	}
}

func TestExtractFeatureIDs_NumericIDsStringified(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
		want  string
	}{
		{name: "int", value: intValue(1234), want: "1234"},
		{name: "uint", value: uintValue(987654321), want: "987654321"},
		{name: "sint positive", value: sintValue(77), want: "77"},
		{name: "sint negative", value: sintValue(-5), want: "-5"},
		{name: "double", value: doubleValue(12.5), want: "12.5"},
		{name: "float", value: floatValue(3.5), want: "3.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tile(layer([]string{"featureId"}, [][]byte{tt.value}, feature(0, 0)))
			ids, err := ExtractFeatureIDs(data)
			if err != nil {
				t.Fatalf("ExtractFeatureIDs: %v", err)
			}
			if len(ids) != 1 || ids[0] != tt.want {
				t.Errorf("ids = %v, want [%s]", ids, tt.want)
			}
		})
	}
}

func TestExtractFeatureIDs_MultipleLayersAndFeatures(t *testing.T) {
	layerA := layer(
		[]string{"featureId"},
		[][]byte{stringValue("a-1"), stringValue("a-2")},
		feature(0, 0),
		feature(0, 1),
	)
	layerB := layer(
		[]string{"roadClass", "featureId"},
		[][]byte{intValue(11), stringValue("b-1")},
		feature(0, 0, 1, 1),
	)

	ids, err := ExtractFeatureIDs(tile(layerA, layerB))
	if err != nil {
		t.Fatalf("ExtractFeatureIDs: %v", err)
	}
	want := []string{"a-1", "a-2", "b-1"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestExtractFeatureIDs_Gzipped(t *testing.T) {
	data := tile(layer([]string{"featureId"}, [][]byte{stringValue("z-1")}, feature(0, 0)))

	ids, err := ExtractFeatureIDs(gzipped(t, data))
	if err != nil {
		t.Fatalf("ExtractFeatureIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "z-1" {
		t.Errorf("ids = %v, want [z-1]", ids)
	}
}

func TestExtractFeatureIDs_NoFeatureIDProperty(t *testing.T) {
	data := tile(layer([]string{"name"}, [][]byte{stringValue("Ring Road")}, feature(0, 0)))

	ids, err := ExtractFeatureIDs(data)
	if err != nil {
		t.Fatalf("ExtractFeatureIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want none", ids)
	}
}

func TestExtractFeatureIDs_EmptyTile(t *testing.T) {
	ids, err := ExtractFeatureIDs(nil)
	if err != nil {
		t.Fatalf("ExtractFeatureIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want none", ids)
	}
}

func TestExtractFeatureIDs_TagIndexOutOfRange(t *testing.T) {
	// Value index 9 does not exist; the pair is dropped, the feature stays.
	data := tile(layer(
		[]string{"featureId", "other"},
		[][]byte{stringValue("ok-1")},
		feature(1, 9),
		feature(0, 0),
	))

	ids, err := ExtractFeatureIDs(data)
	if err != nil {
		t.Fatalf("ExtractFeatureIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "ok-1" {
		t.Errorf("ids = %v, want [ok-1]", ids)
	}
}

func TestExtractFeatureIDs_OddTagCountIgnoresTrailing(t *testing.T) {
	data := tile(layer(
		[]string{"featureId"},
		[][]byte{stringValue("odd-1")},
		feature(0, 0, 0), // trailing key index without a value index
	))

	ids, err := ExtractFeatureIDs(data)
	if err != nil {
		t.Fatalf("ExtractFeatureIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "odd-1" {
		t.Errorf("ids = %v, want [odd-1]", ids)
	}
}

func TestExtractFeatureIDs_EmptyValueDecodesToNil(t *testing.T) {
	// An empty Value message has no recognized field; the featureId resolves
	// to nil and is not reported.
	data := tile(layer([]string{"featureId"}, [][]byte{{}}, feature(0, 0)))

	ids, err := ExtractFeatureIDs(data)
	if err != nil {
		t.Fatalf("ExtractFeatureIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want none", ids)
	}
}

func TestExtractFeatureIDs_TruncatedVarint(t *testing.T) {
	_, err := ExtractFeatureIDs([]byte{0x80})
	if err == nil {
		t.Fatal("expected error for truncated varint")
	}
	if !strings.Contains(err.Error(), "varint") {
		t.Errorf("error = %v, want varint error", err)
	}
}

func TestExtractFeatureIDs_FieldOverrunsBuffer(t *testing.T) {
	// Layer field claiming 100 bytes with only 2 present.
	data := appendTag(nil, 3, wireBytes)
	data = appendVarint(data, 100)
	data = append(data, 0x01, 0x02)

	_, err := ExtractFeatureIDs(data)
	if err == nil {
		t.Fatal("expected error for overrunning field")
	}
	if !strings.Contains(err.Error(), "overruns") {
		t.Errorf("error = %v, want overrun error", err)
	}
}

func TestExtractFeatureIDs_UnknownWireType(t *testing.T) {
	// Wire type 4 (end group) is not part of the MVT encoding.
	data := appendTag(nil, 9, 4)

	_, err := ExtractFeatureIDs(data)
	if err == nil {
		t.Fatal("expected error for unknown wire type")
	}
	if !strings.Contains(err.Error(), "wire type") {
		t.Errorf("error = %v, want wire type error", err)
	}
}

func TestExtractFeatureIDs_CorruptGzip(t *testing.T) {
	data := []byte{0x1f, 0x8b, 0xff, 0xff, 0xff}

	_, err := ExtractFeatureIDs(data)
	if err == nil {
		t.Fatal("expected error for corrupt gzip data")
	}
}

func TestUnzigzag(t *testing.T) {
	tests := []struct {
		in   uint64
		want int64
	}{
		{0, 0},
		{1, -1},
		{2, 1},
		{3, -2},
		{4294967294, 2147483647},
		{4294967295, -2147483648},
	}
	for _, tt := range tests {
		if got := unzigzag(tt.in); got != tt.want {
			t.Errorf("unzigzag(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
