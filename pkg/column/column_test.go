package column

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/big"
	"reflect"
	"testing"
	"time"

	chbin "github.com/IAL32/clickhouse-async/pkg/binary"
)

// roundTrip encodes the appended values and decodes them into a fresh column
// of the same type.
func roundTrip(t *testing.T, typeString string, values []any) Column {
	t.Helper()

	col, err := FromTypeString(typeString)
	if err != nil {
		t.Fatalf("Failed to build %s column: %v", typeString, err)
	}
	for _, v := range values {
		if err := col.Append(v); err != nil {
			t.Fatalf("Failed to append %v to %s: %v", v, typeString, err)
		}
	}

	var buf bytes.Buffer
	w := chbin.NewWriter(&buf)
	if err := col.Encode(w); err != nil {
		t.Fatalf("Failed to encode %s: %v", typeString, err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	decoded, err := FromTypeString(typeString)
	if err != nil {
		t.Fatalf("Failed to build %s column: %v", typeString, err)
	}
	if err := decoded.Decode(chbin.NewReader(&buf), len(values)); err != nil {
		t.Fatalf("Failed to decode %s: %v", typeString, err)
	}
	if decoded.Rows() != len(values) {
		t.Fatalf("Decoded %d rows, expected %d", decoded.Rows(), len(values))
	}
	return decoded
}

func TestScalarRoundTrip(t *testing.T) {
	cases := []struct {
		typeString string
		values     []any
	}{
		{"UInt8", []any{uint8(0), uint8(1), uint8(255)}},
		{"UInt16", []any{uint16(0), uint16(65535)}},
		{"UInt32", []any{uint32(0), uint32(4294967295)}},
		{"UInt64", []any{uint64(0), uint64(18446744073709551615)}},
		{"Int8", []any{int8(-128), int8(0), int8(127)}},
		{"Int16", []any{int16(-32768), int16(32767)}},
		{"Int32", []any{int32(-2147483648), int32(2147483647)}},
		{"Int64", []any{int64(-9223372036854775808), int64(9223372036854775807)}},
		{"Float32", []any{float32(0), float32(-1.5), float32(3.25)}},
		{"Float64", []any{float64(0), float64(-2.5), float64(1e300)}},
		{"String", []any{"", "hello", "привет"}},
		{"Enum8('a' = 1, 'b' = 2)", []any{"a", "b", "a"}},
		{"Enum16('x' = -300, 'y' = 300)", []any{"y", "x"}},
	}

	for _, c := range cases {
		decoded := roundTrip(t, c.typeString, c.values)
		for i, want := range c.values {
			if got := decoded.Row(i); !reflect.DeepEqual(got, want) {
				t.Errorf("%s row %d: got %v, want %v", c.typeString, i, got, want)
			}
		}
	}
}

func TestBigIntRoundTrip(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	negative := new(big.Int).Neg(huge)

	cases := []struct {
		typeString string
		values     []any
	}{
		{"UInt128", []any{big.NewInt(0), big.NewInt(42), huge}},
		{"Int128", []any{big.NewInt(-1), negative, huge}},
		{"UInt256", []any{huge, new(big.Int).Mul(huge, huge)}},
		{"Int256", []any{new(big.Int).Neg(new(big.Int).Mul(huge, huge))}},
	}

	for _, c := range cases {
		decoded := roundTrip(t, c.typeString, c.values)
		for i, want := range c.values {
			got := decoded.Row(i).(*big.Int)
			if got.Cmp(want.(*big.Int)) != 0 {
				t.Errorf("%s row %d: got %s, want %s", c.typeString, i, got, want)
			}
		}
	}
}

func TestFixedStringRoundTrip(t *testing.T) {
	decoded := roundTrip(t, "FixedString(4)", []any{[]byte("abcd"), []byte("xy")})

	if got := decoded.Row(0).([]byte); !bytes.Equal(got, []byte("abcd")) {
		t.Errorf("Row 0: got %q", got)
	}
	// Short values are zero-padded to the declared width.
	if got := decoded.Row(1).([]byte); !bytes.Equal(got, []byte{'x', 'y', 0, 0}) {
		t.Errorf("Row 1: got %q", got)
	}
}

func TestDateTimeRoundTrip(t *testing.T) {
	moment := time.Date(2023, 3, 1, 12, 30, 45, 0, time.UTC)
	day := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	precise := time.Date(2023, 3, 1, 12, 30, 45, 123000000, time.UTC)

	cases := []struct {
		typeString string
		values     []any
		want       []time.Time
	}{
		{"Date", []any{day}, []time.Time{day}},
		{"Date32", []any{time.Date(1950, 6, 1, 0, 0, 0, 0, time.UTC)}, []time.Time{time.Date(1950, 6, 1, 0, 0, 0, 0, time.UTC)}},
		{"DateTime", []any{moment}, []time.Time{moment}},
		{"DateTime64(3)", []any{precise}, []time.Time{precise}},
	}

	for _, c := range cases {
		decoded := roundTrip(t, c.typeString, c.values)
		for i, want := range c.want {
			got := decoded.Row(i).(time.Time)
			if !got.Equal(want) {
				t.Errorf("%s row %d: got %v, want %v", c.typeString, i, got, want)
			}
		}
	}
}

// DateTime64 ticks must not lose sub-second precision.
func TestDateTime64Precision(t *testing.T) {
	col, err := FromTypeString("DateTime64(6)")
	if err != nil {
		t.Fatalf("Failed to build column: %v", err)
	}
	moment := time.Date(2023, 1, 2, 3, 4, 5, 123456000, time.UTC)
	if err := col.Append(moment); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if got := col.Row(0).(time.Time); !got.Equal(moment) {
		t.Fatalf("Precision lost: got %v, want %v", got, moment)
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	cases := []struct {
		typeString string
		unscaled   int64
		scale      int
		rendered   string
	}{
		{"Decimal(9, 2)", -12345, 2, "-123.45"},
		{"Decimal(18, 4)", 10000, 4, "1.0000"},
		{"Decimal(38, 0)", 42, 0, "42"},
		{"Decimal(38, 6)", 1, 6, "0.000001"},
	}

	for _, c := range cases {
		value := Decimal{Unscaled: big.NewInt(c.unscaled), Scale: c.scale}
		decoded := roundTrip(t, c.typeString, []any{value})
		got := decoded.Row(0).(Decimal)
		if got.Unscaled.Cmp(value.Unscaled) != 0 || got.Scale != c.scale {
			t.Errorf("%s: got %+v, want %+v", c.typeString, got, value)
		}
		if got.String() != c.rendered {
			t.Errorf("%s: rendered %q, want %q", c.typeString, got.String(), c.rendered)
		}
	}
}

func TestNullableRoundTrip(t *testing.T) {
	values := []any{"alpha", nil, "gamma", nil}
	decoded := roundTrip(t, "Nullable(String)", values)

	// Positions flagged null surface as nil; placeholder bytes are never
	// part of the comparison.
	for i, want := range values {
		got := decoded.Row(i)
		if want == nil {
			if got != nil {
				t.Errorf("Row %d: expected nil, got %v", i, got)
			}
			continue
		}
		if got != want {
			t.Errorf("Row %d: got %v, want %v", i, got, want)
		}
	}
}

// The wire layout for Nullable is a full-length bitmap followed by inner
// values for every row, nulls included.
func TestNullableWireLayout(t *testing.T) {
	col, err := FromTypeString("Nullable(UInt8)")
	if err != nil {
		t.Fatalf("Failed to build column: %v", err)
	}
	if err := col.Append(uint8(7)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := col.Append(nil); err != nil {
		t.Fatalf("Append nil: %v", err)
	}

	var buf bytes.Buffer
	w := chbin.NewWriter(&buf)
	if err := col.Encode(w); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := []byte{0, 1, 7, 0} // bitmap then values, null slot holds a placeholder
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("Wire bytes % x, want % x", buf.Bytes(), want)
	}
}

func TestArrayRoundTrip(t *testing.T) {
	values := []any{
		[]any{uint32(1), uint32(2), uint32(3)},
		[]any{},
		[]any{uint32(4)},
	}
	decoded := roundTrip(t, "Array(UInt32)", values)

	for i, want := range values {
		got := decoded.Row(i).([]any)
		if len(got) != len(want.([]any)) {
			t.Fatalf("Row %d length %d, want %d", i, len(got), len(want.([]any)))
		}
		for j := range got {
			if got[j] != want.([]any)[j] {
				t.Errorf("Row %d element %d: got %v, want %v", i, j, got[j], want.([]any)[j])
			}
		}
	}
}

func TestNestedArrayRoundTrip(t *testing.T) {
	values := []any{
		[]any{[]any{"a", "b"}, []any{}},
		[]any{[]any{"c"}},
	}
	decoded := roundTrip(t, "Array(Array(String))", values)
	if !reflect.DeepEqual(decoded.Row(0), values[0]) {
		t.Errorf("Row 0: got %v, want %v", decoded.Row(0), values[0])
	}
	if !reflect.DeepEqual(decoded.Row(1), values[1]) {
		t.Errorf("Row 1: got %v, want %v", decoded.Row(1), values[1])
	}
}

// Non-monotonic offsets are trust-critical framing corruption: the whole
// column decode fails, nothing is partially returned.
func TestArrayRejectsNonMonotonicOffsets(t *testing.T) {
	var buf bytes.Buffer
	offsets := []uint64{5, 2} // second offset goes backwards
	for _, off := range offsets {
		var scratch [8]byte
		binary.LittleEndian.PutUint64(scratch[:], off)
		buf.Write(scratch[:])
	}

	col, err := FromTypeString("Array(UInt8)")
	if err != nil {
		t.Fatalf("Failed to build column: %v", err)
	}
	if err := col.Decode(chbin.NewReader(&buf), 2); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Expected ErrCorrupt, got %v", err)
	}
}

func TestArrayRejectsTruncatedElements(t *testing.T) {
	var buf bytes.Buffer
	var scratch [8]byte
	// One row claiming 10 elements, but no element bytes follow.
	binary.LittleEndian.PutUint64(scratch[:], 10)
	buf.Write(scratch[:])

	col, err := FromTypeString("Array(UInt8)")
	if err != nil {
		t.Fatalf("Failed to build column: %v", err)
	}
	if err := col.Decode(chbin.NewReader(&buf), 1); !errors.Is(err, chbin.ErrTruncated) {
		t.Fatalf("Expected ErrTruncated, got %v", err)
	}
}

// A rejected element list must leave the column exactly as it was:
// elements of the bad row must not linger in the inner column past the
// last closing offset.
func TestArrayRejectedAppendLeavesColumnConsistent(t *testing.T) {
	col, err := FromTypeString("Array(UInt8)")
	if err != nil {
		t.Fatalf("Failed to build column: %v", err)
	}
	if err := col.Append([]any{uint8(1), uint8(2)}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := col.Append([]any{uint8(3), "oops"}); err == nil {
		t.Fatal("Expected type error on mixed element list")
	}
	if col.Rows() != 1 {
		t.Fatalf("Rows = %d after rejected append, want 1", col.Rows())
	}

	var buf bytes.Buffer
	w := chbin.NewWriter(&buf)
	if err := col.Encode(w); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// One offset (2) plus exactly two element bytes.
	want := []byte{2, 0, 0, 0, 0, 0, 0, 0, 1, 2}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("Wire bytes % x, want % x", buf.Bytes(), want)
	}
}

func TestTupleRoundTrip(t *testing.T) {
	values := []any{
		[]any{uint8(1), "one"},
		[]any{uint8(2), "two"},
	}
	decoded := roundTrip(t, "Tuple(UInt8, String)", values)
	for i, want := range values {
		if !reflect.DeepEqual(decoded.Row(i), want) {
			t.Errorf("Row %d: got %v, want %v", i, decoded.Row(i), want)
		}
	}
}

func TestMapRoundTrip(t *testing.T) {
	values := []any{
		map[any]any{"a": uint64(1), "b": uint64(2)},
		map[any]any{},
		map[any]any{"c": uint64(3)},
	}
	decoded := roundTrip(t, "Map(String, UInt64)", values)
	for i, want := range values {
		if !reflect.DeepEqual(decoded.Row(i), want) {
			t.Errorf("Row %d: got %v, want %v", i, decoded.Row(i), want)
		}
	}
}

func TestLowCardinalityRoundTrip(t *testing.T) {
	values := []any{"red", "green", "red", "blue", "red"}
	decoded := roundTrip(t, "LowCardinality(String)", values)
	for i, want := range values {
		if got := decoded.Row(i); got != want {
			t.Errorf("Row %d: got %v, want %v", i, got, want)
		}
	}
}

func TestLowCardinalityNullableRoundTrip(t *testing.T) {
	values := []any{"x", nil, "x", "y", nil}
	decoded := roundTrip(t, "LowCardinality(Nullable(String))", values)
	for i, want := range values {
		got := decoded.Row(i)
		if want == nil {
			if got != nil {
				t.Errorf("Row %d: expected nil, got %v", i, got)
			}
			continue
		}
		if got != want {
			t.Errorf("Row %d: got %v, want %v", i, got, want)
		}
	}
}

func TestAppendRejectsWrongType(t *testing.T) {
	col, err := FromTypeString("UInt32")
	if err != nil {
		t.Fatalf("Failed to build column: %v", err)
	}
	// Values are checked against the declared type, never coerced.
	if err := col.Append("not a number"); err == nil {
		t.Fatal("Expected an error appending a string to UInt32")
	}
	if err := col.Append(int32(1)); err == nil {
		t.Fatal("Expected an error appending int32 to UInt32")
	}
}
