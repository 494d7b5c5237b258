package column

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// The textual form must round-trip: ParseType(t.String()) is equivalent to t.
func TestParseTypeRoundTrip(t *testing.T) {
	typeStrings := []string{
		"UInt8",
		"UInt64",
		"Int128",
		"UInt256",
		"Float64",
		"String",
		"FixedString(16)",
		"Date",
		"Date32",
		"DateTime",
		"DateTime('UTC')",
		"DateTime64(3)",
		"DateTime64(6, 'UTC')",
		"Decimal(9, 4)",
		"Decimal(38, 10)",
		"Enum8('a' = 1, 'b' = 2)",
		"Enum16('up' = 100, 'down' = -100)",
		"Nullable(Int64)",
		"Array(String)",
		"Array(Array(UInt32))",
		"Tuple(UInt8, String)",
		"Tuple(Nullable(String), Array(Int32))",
		"Map(String, UInt64)",
		"LowCardinality(String)",
		"LowCardinality(Nullable(String))",
	}

	for _, s := range typeStrings {
		parsed, err := ParseType(s)
		if err != nil {
			t.Fatalf("Failed to parse %q: %v", s, err)
		}
		reparsed, err := ParseType(parsed.String())
		if err != nil {
			t.Fatalf("Failed to reparse %q (rendered %q): %v", s, parsed.String(), err)
		}
		if !reflect.DeepEqual(parsed, reparsed) {
			t.Errorf("Descriptor round-trip mismatch for %q: rendered %q", s, parsed.String())
		}
	}
}

func TestParseTypeNormalizesSpacing(t *testing.T) {
	a, err := ParseType("Map(String,UInt64)")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	b, err := ParseType("Map(String, UInt64)")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("Spacing should not affect the parsed descriptor")
	}
}

func TestParseTypeUnsupported(t *testing.T) {
	for _, s := range []string{
		"AggregateFunction(sum, UInt64)",
		"Array(Frob)",
		"Nullable()",
		"FixedString(0)",
		"Tuple(UInt8",
		"Enum8()",
		"UInt8 extra",
	} {
		if _, err := ParseType(s); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("Expected ErrUnsupportedType for %q, got %v", s, err)
		}
	}
}

// Adversarially nested types fail with a limit error instead of recursing
// without bound.
func TestParseTypeNestingDepth(t *testing.T) {
	deep := strings.Repeat("Array(", 100) + "UInt8" + strings.Repeat(")", 100)
	if _, err := ParseType(deep); !errors.Is(err, binary.ErrLimitExceeded) {
		t.Fatalf("Expected ErrLimitExceeded, got %v", err)
	}
}
