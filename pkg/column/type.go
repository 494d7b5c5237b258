package column

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/IAL32/clickhouse-async/pkg/binary"
)

// ErrUnsupportedType indicates a declared column type the codec cannot handle.
// It is reported per column so that schema evolution on the server does not
// take down decoding of unrelated columns.
var ErrUnsupportedType = errors.New("unsupported type")

// maxNestingDepth bounds recursion while parsing composite type strings.
// Adversarial schemas like Array(Array(Array(...))) fail instead of
// exhausting the stack.
const maxNestingDepth = 32

// Kind identifies one supported column type variant.
type Kind int

const (
	KindUInt8 Kind = iota
	KindUInt16
	KindUInt32
	KindUInt64
	KindUInt128
	KindUInt256
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindInt128
	KindInt256
	KindFloat32
	KindFloat64
	KindString
	KindFixedString
	KindDate
	KindDate32
	KindDateTime
	KindDateTime64
	KindDecimal
	KindEnum8
	KindEnum16
	KindNullable
	KindArray
	KindTuple
	KindMap
	KindLowCardinality
)

// EnumEntry is one name/value pair of an Enum8 or Enum16 declaration, in
// declared order.
type EnumEntry struct {
	Name  string
	Value int16
}

// Type is the parsed, recursive representation of a column's declared type
// string. It is immutable once produced by ParseType.
type Type struct {
	Kind      Kind
	Length    int         // FixedString byte width
	Precision int         // Decimal precision, DateTime64 tick precision
	Scale     int         // Decimal scale
	Timezone  string      // DateTime/DateTime64 timezone, empty when absent
	Enum      []EnumEntry // Enum8/Enum16 entries
	Elems     []*Type     // Nullable/Array/LowCardinality: 1, Map: 2, Tuple: n
}

var simpleKinds = map[string]Kind{
	"UInt8":   KindUInt8,
	"UInt16":  KindUInt16,
	"UInt32":  KindUInt32,
	"UInt64":  KindUInt64,
	"UInt128": KindUInt128,
	"UInt256": KindUInt256,
	"Int8":    KindInt8,
	"Int16":   KindInt16,
	"Int32":   KindInt32,
	"Int64":   KindInt64,
	"Int128":  KindInt128,
	"Int256":  KindInt256,
	"Float32": KindFloat32,
	"Float64": KindFloat64,
	"String":  KindString,
	"Date":    KindDate,
	"Date32":  KindDate32,
}

var kindNames = map[Kind]string{
	KindUInt8:   "UInt8",
	KindUInt16:  "UInt16",
	KindUInt32:  "UInt32",
	KindUInt64:  "UInt64",
	KindUInt128: "UInt128",
	KindUInt256: "UInt256",
	KindInt8:    "Int8",
	KindInt16:   "Int16",
	KindInt32:   "Int32",
	KindInt64:   "Int64",
	KindInt128:  "Int128",
	KindInt256:  "Int256",
	KindFloat32: "Float32",
	KindFloat64: "Float64",
	KindString:  "String",
	KindDate:    "Date",
	KindDate32:  "Date32",
}

// typeCache holds parsed descriptors keyed by their textual form. Type
// strings repeat on every block of a result set, so parsing each one once
// is enough.
var typeCache, _ = lru.New[string, *Type](512)

// ParseType parses a ClickHouse type string such as "UInt32",
// "Array(Nullable(String))" or "DateTime64(3, 'UTC')" into a descriptor.
func ParseType(s string) (*Type, error) {
	s = strings.TrimSpace(s)
	if t, ok := typeCache.Get(s); ok {
		return t, nil
	}
	p := typeParser{input: s}
	t, err := p.parse(0)
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("%w: trailing input in %q", ErrUnsupportedType, s)
	}
	typeCache.Add(s, t)
	return t, nil
}

// String renders the canonical textual form of the descriptor, such that
// ParseType(t.String()) yields an equivalent descriptor.
func (t *Type) String() string {
	switch t.Kind {
	case KindFixedString:
		return fmt.Sprintf("FixedString(%d)", t.Length)
	case KindDateTime:
		if t.Timezone != "" {
			return fmt.Sprintf("DateTime('%s')", t.Timezone)
		}
		return "DateTime"
	case KindDateTime64:
		if t.Timezone != "" {
			return fmt.Sprintf("DateTime64(%d, '%s')", t.Precision, t.Timezone)
		}
		return fmt.Sprintf("DateTime64(%d)", t.Precision)
	case KindDecimal:
		return fmt.Sprintf("Decimal(%d, %d)", t.Precision, t.Scale)
	case KindEnum8, KindEnum16:
		name := "Enum8"
		if t.Kind == KindEnum16 {
			name = "Enum16"
		}
		entries := make([]string, len(t.Enum))
		for i, e := range t.Enum {
			entries[i] = fmt.Sprintf("'%s' = %d", escapeQuoted(e.Name), e.Value)
		}
		return fmt.Sprintf("%s(%s)", name, strings.Join(entries, ", "))
	case KindNullable:
		return fmt.Sprintf("Nullable(%s)", t.Elems[0])
	case KindArray:
		return fmt.Sprintf("Array(%s)", t.Elems[0])
	case KindLowCardinality:
		return fmt.Sprintf("LowCardinality(%s)", t.Elems[0])
	case KindMap:
		return fmt.Sprintf("Map(%s, %s)", t.Elems[0], t.Elems[1])
	case KindTuple:
		elems := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = e.String()
		}
		return fmt.Sprintf("Tuple(%s)", strings.Join(elems, ", "))
	default:
		return kindNames[t.Kind]
	}
}

type typeParser struct {
	input string
	pos   int
}

func (p *typeParser) parse(depth int) (*Type, error) {
	if depth >= maxNestingDepth {
		return nil, fmt.Errorf("type nesting deeper than %d: %w", maxNestingDepth, binary.ErrLimitExceeded)
	}

	name := p.ident()
	if name == "" {
		return nil, fmt.Errorf("%w: empty type at offset %d in %q", ErrUnsupportedType, p.pos, p.input)
	}

	if kind, ok := simpleKinds[name]; ok {
		return &Type{Kind: kind}, nil
	}

	switch name {
	case "DateTime":
		t := &Type{Kind: KindDateTime}
		if p.peek() == '(' {
			args, err := p.quotedArgs(1)
			if err != nil {
				return nil, err
			}
			t.Timezone = args[0]
		}
		return t, nil

	case "DateTime64":
		if err := p.expect('('); err != nil {
			return nil, err
		}
		prec, err := p.number()
		if err != nil {
			return nil, err
		}
		t := &Type{Kind: KindDateTime64, Precision: prec}
		p.skipSpaces()
		if p.peek() == ',' {
			p.pos++
			tz, err := p.quoted()
			if err != nil {
				return nil, err
			}
			t.Timezone = tz
		}
		return t, p.expect(')')

	case "FixedString":
		if err := p.expect('('); err != nil {
			return nil, err
		}
		n, err := p.number()
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, fmt.Errorf("%w: FixedString width %d", ErrUnsupportedType, n)
		}
		return &Type{Kind: KindFixedString, Length: n}, p.expect(')')

	case "Decimal":
		if err := p.expect('('); err != nil {
			return nil, err
		}
		prec, err := p.number()
		if err != nil {
			return nil, err
		}
		p.skipSpaces()
		if err := p.expect(','); err != nil {
			return nil, err
		}
		scale, err := p.number()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return newDecimalType(prec, scale)

	case "Decimal32", "Decimal64", "Decimal128", "Decimal256":
		if err := p.expect('('); err != nil {
			return nil, err
		}
		scale, err := p.number()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		prec := map[string]int{
			"Decimal32": 9, "Decimal64": 18, "Decimal128": 38, "Decimal256": 76,
		}[name]
		return newDecimalType(prec, scale)

	case "Enum8", "Enum16":
		entries, err := p.enumEntries(name == "Enum8")
		if err != nil {
			return nil, err
		}
		kind := KindEnum8
		if name == "Enum16" {
			kind = KindEnum16
		}
		return &Type{Kind: kind, Enum: entries}, nil

	case "Nullable", "Array", "LowCardinality":
		kind := map[string]Kind{
			"Nullable": KindNullable, "Array": KindArray, "LowCardinality": KindLowCardinality,
		}[name]
		if err := p.expect('('); err != nil {
			return nil, err
		}
		inner, err := p.parse(depth + 1)
		if err != nil {
			return nil, err
		}
		return &Type{Kind: kind, Elems: []*Type{inner}}, p.expect(')')

	case "Map":
		if err := p.expect('('); err != nil {
			return nil, err
		}
		key, err := p.parse(depth + 1)
		if err != nil {
			return nil, err
		}
		p.skipSpaces()
		if err := p.expect(','); err != nil {
			return nil, err
		}
		value, err := p.parse(depth + 1)
		if err != nil {
			return nil, err
		}
		return &Type{Kind: KindMap, Elems: []*Type{key, value}}, p.expect(')')

	case "Tuple":
		if err := p.expect('('); err != nil {
			return nil, err
		}
		var elems []*Type
		for {
			elem, err := p.parse(depth + 1)
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
			p.skipSpaces()
			if p.peek() != ',' {
				break
			}
			p.pos++
		}
		return &Type{Kind: KindTuple, Elems: elems}, p.expect(')')
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
}

func newDecimalType(prec, scale int) (*Type, error) {
	if prec < 1 || prec > 76 || scale < 0 || scale > prec {
		return nil, fmt.Errorf("%w: Decimal(%d, %d)", ErrUnsupportedType, prec, scale)
	}
	return &Type{Kind: KindDecimal, Precision: prec, Scale: scale}, nil
}

func (p *typeParser) ident() string {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '(' || c == ')' || c == ',' || c == ' ' || c == '\'' {
			break
		}
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *typeParser) peek() byte {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *typeParser) expect(c byte) error {
	if p.peek() != c {
		return fmt.Errorf("%w: expected %q at offset %d in %q", ErrUnsupportedType, string(c), p.pos, p.input)
	}
	p.pos++
	return nil
}

func (p *typeParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) number() (int, error) {
	p.skipSpaces()
	start := p.pos
	if p.pos < len(p.input) && p.input[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.Atoi(p.input[start:p.pos])
	if err != nil {
		return 0, fmt.Errorf("%w: expected number at offset %d in %q", ErrUnsupportedType, start, p.input)
	}
	return n, nil
}

func (p *typeParser) quoted() (string, error) {
	if err := p.expect('\''); err != nil {
		return "", err
	}
	var sb strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		p.pos++
		switch c {
		case '\'':
			return sb.String(), nil
		case '\\':
			if p.pos < len(p.input) {
				sb.WriteByte(p.input[p.pos])
				p.pos++
			}
		default:
			sb.WriteByte(c)
		}
	}
	return "", fmt.Errorf("%w: unterminated string in %q", ErrUnsupportedType, p.input)
}

// quotedArgs reads a parenthesized list of exactly n quoted strings.
func (p *typeParser) quotedArgs(n int) ([]string, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := p.expect(','); err != nil {
				return nil, err
			}
		}
		s, err := p.quoted()
		if err != nil {
			return nil, err
		}
		args = append(args, s)
	}
	return args, p.expect(')')
}

func (p *typeParser) enumEntries(narrow bool) ([]EnumEntry, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var entries []EnumEntry
	for {
		name, err := p.quoted()
		if err != nil {
			return nil, err
		}
		p.skipSpaces()
		if err := p.expect('='); err != nil {
			return nil, err
		}
		v, err := p.number()
		if err != nil {
			return nil, err
		}
		if narrow && (v < -128 || v > 127) {
			return nil, fmt.Errorf("%w: Enum8 value %d out of range", ErrUnsupportedType, v)
		}
		if v < -32768 || v > 32767 {
			return nil, fmt.Errorf("%w: Enum16 value %d out of range", ErrUnsupportedType, v)
		}
		entries = append(entries, EnumEntry{Name: name, Value: int16(v)})
		p.skipSpaces()
		if p.peek() != ',' {
			break
		}
		p.pos++
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty enum", ErrUnsupportedType)
	}
	return entries, p.expect(')')
}

func escapeQuoted(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
