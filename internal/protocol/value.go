package protocol

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Type identifies a RESP value by its wire prefix byte.
type Type byte

// RESP2 types.
const (
	TypeStatus  Type = '+'
	TypeError   Type = '-'
	TypeInteger Type = ':'
	TypeBulk    Type = '$'
	TypeArray   Type = '*'
)

// RESP3 additions.
const (
	TypeNull      Type = '_'
	TypeDouble    Type = ','
	TypeBoolean   Type = '#'
	TypeBlobError Type = '!'
	TypeVerbatim  Type = '='
	TypeBigNumber Type = '('
	TypeMap       Type = '%'
	TypeSet       Type = '~'
	TypeAttribute Type = '|'
	TypePush      Type = '>'
)

func (t Type) String() string {
	switch t {
	case TypeStatus:
		return "status"
	case TypeError:
		return "error"
	case TypeInteger:
		return "integer"
	case TypeBulk:
		return "bulk"
	case TypeArray:
		return "array"
	case TypeNull:
		return "null"
	case TypeDouble:
		return "double"
	case TypeBoolean:
		return "boolean"
	case TypeBlobError:
		return "blob-error"
	case TypeVerbatim:
		return "verbatim"
	case TypeBigNumber:
		return "big-number"
	case TypeMap:
		return "map"
	case TypeSet:
		return "set"
	case TypeAttribute:
		return "attribute"
	case TypePush:
		return "push"
	}
	return fmt.Sprintf("unknown(%q)", byte(t))
}

// ErrConvert is returned by Reply accessors when the value cannot be
// interpreted as the requested Go type.
var ErrConvert = errors.New("resp: conversion error")

// Reply is one decoded RESP value.
//
// Str carries the payload of every textual and binary type (status, error,
// bulk, blob error, verbatim including its three-byte format tag, big
// number, and the literal form of a double). Go strings are byte-safe, so
// bulk payloads round-trip unmodified. Elems carries aggregate members;
// for maps the pairs are flattened key, value, key, value.
type Reply struct {
	Type  Type
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Nil   bool
	Elems []Reply

	// Attrib is out-of-band metadata that preceded this value on the
	// wire, or nil. It never appears as a value of its own.
	Attrib *Reply
}

// IsNil reports whether the value is a RESP2 nil bulk/array or a RESP3 null.
func (r Reply) IsNil() bool { return r.Nil || r.Type == TypeNull }

// IsError reports whether the value is a server error (simple or blob).
func (r Reply) IsError() bool { return r.Type == TypeError || r.Type == TypeBlobError }

// IsPush reports whether the value is a RESP3 push frame.
func (r Reply) IsPush() bool { return r.Type == TypePush }

// IsAggregate reports whether the value carries sub-values in Elems.
func (r Reply) IsAggregate() bool {
	switch r.Type {
	case TypeArray, TypeMap, TypeSet, TypePush:
		return true
	}
	return false
}

// AsString returns the textual payload. Integers, doubles and booleans are
// formatted; aggregates and nils fail with ErrConvert.
func (r Reply) AsString() (string, error) {
	if r.IsNil() {
		return "", fmt.Errorf("%w: nil value has no string form", ErrConvert)
	}
	switch r.Type {
	case TypeStatus, TypeBulk, TypeError, TypeBlobError, TypeBigNumber:
		return r.Str, nil
	case TypeVerbatim:
		return r.VerbatimContent(), nil
	case TypeInteger:
		return strconv.FormatInt(r.Int, 10), nil
	case TypeDouble:
		return r.Str, nil
	case TypeBoolean:
		if r.Bool {
			return "true", nil
		}
		return "false", nil
	}
	return "", fmt.Errorf("%w: %s has no string form", ErrConvert, r.Type)
}

// AsBytes returns the payload as a byte slice.
func (r Reply) AsBytes() ([]byte, error) {
	s, err := r.AsString()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// AsInt returns the value as a signed 64-bit integer. Bulk and status
// payloads are parsed.
func (r Reply) AsInt() (int64, error) {
	switch r.Type {
	case TypeInteger:
		return r.Int, nil
	case TypeBoolean:
		if r.Bool {
			return 1, nil
		}
		return 0, nil
	case TypeStatus, TypeBulk, TypeBigNumber:
		if r.Nil {
			break
		}
		n, err := strconv.ParseInt(r.Str, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrConvert, r.Str)
		}
		return n, nil
	case TypeDouble:
		return int64(r.Float), nil
	}
	return 0, fmt.Errorf("%w: %s is not an integer", ErrConvert, r.Type)
}

// AsFloat returns the value as a float64.
func (r Reply) AsFloat() (float64, error) {
	switch r.Type {
	case TypeDouble:
		return r.Float, nil
	case TypeInteger:
		return float64(r.Int), nil
	case TypeStatus, TypeBulk:
		if r.Nil {
			break
		}
		f, err := strconv.ParseFloat(r.Str, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a float", ErrConvert, r.Str)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %s is not a float", ErrConvert, r.Type)
}

// AsBool returns the value as a boolean. Integers follow the Redis
// convention of zero meaning false.
func (r Reply) AsBool() (bool, error) {
	switch r.Type {
	case TypeBoolean:
		return r.Bool, nil
	case TypeInteger:
		return r.Int != 0, nil
	case TypeStatus:
		return r.Str == "OK", nil
	}
	return false, fmt.Errorf("%w: %s is not a boolean", ErrConvert, r.Type)
}

// AsDecimal returns the value as an arbitrary-precision decimal. It is the
// lossless accessor for RESP3 big numbers and doubles.
func (r Reply) AsDecimal() (decimal.Decimal, error) {
	switch r.Type {
	case TypeBigNumber, TypeDouble, TypeBulk, TypeStatus:
		if r.Nil {
			break
		}
		d, err := decimal.NewFromString(r.Str)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q is not a number", ErrConvert, r.Str)
		}
		return d, nil
	case TypeInteger:
		return decimal.NewFromInt(r.Int), nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: %s is not a number", ErrConvert, r.Type)
}

// AsSlice returns the members of an array, set, or push frame.
func (r Reply) AsSlice() ([]Reply, error) {
	if r.Nil {
		return nil, nil
	}
	switch r.Type {
	case TypeArray, TypeSet, TypePush:
		return r.Elems, nil
	case TypeMap:
		return r.Elems, nil
	}
	return nil, fmt.Errorf("%w: %s is not an aggregate", ErrConvert, r.Type)
}

// AsMap returns map pairs keyed by their string form. A RESP2 array with an
// even element count converts the same way. Duplicate keys resolve to the
// last occurrence.
func (r Reply) AsMap() (map[string]Reply, error) {
	switch r.Type {
	case TypeMap, TypeArray:
	default:
		return nil, fmt.Errorf("%w: %s is not a map", ErrConvert, r.Type)
	}
	if len(r.Elems)%2 != 0 {
		return nil, fmt.Errorf("%w: odd element count %d", ErrConvert, len(r.Elems))
	}
	out := make(map[string]Reply, len(r.Elems)/2)
	for i := 0; i+1 < len(r.Elems); i += 2 {
		k, err := r.Elems[i].AsString()
		if err != nil {
			return nil, err
		}
		out[k] = r.Elems[i+1]
	}
	return out, nil
}

// AsStringMap is AsMap with string values.
func (r Reply) AsStringMap() (map[string]string, error) {
	m, err := r.AsMap()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, err := v.AsString()
		if err != nil {
			return nil, err
		}
		out[k] = s
	}
	return out, nil
}

// VerbatimFormat returns the three-byte format tag of a verbatim string
// ("txt", "mkd").
func (r Reply) VerbatimFormat() string {
	if r.Type == TypeVerbatim && len(r.Str) >= 4 {
		return r.Str[:3]
	}
	return ""
}

// VerbatimContent returns the verbatim payload without the format tag.
func (r Reply) VerbatimContent() string {
	if r.Type == TypeVerbatim && len(r.Str) >= 4 {
		return r.Str[4:]
	}
	return r.Str
}

// Status builds a simple-string reply. Test and fake-server helper.
func Status(s string) Reply { return Reply{Type: TypeStatus, Str: s} }

// Err builds a simple error reply.
func Err(s string) Reply { return Reply{Type: TypeError, Str: s} }

// Integer builds an integer reply.
func Integer(n int64) Reply { return Reply{Type: TypeInteger, Int: n} }

// Bulk builds a bulk-string reply.
func Bulk(s string) Reply { return Reply{Type: TypeBulk, Str: s} }

// NilBulk builds a RESP2 nil bulk string.
func NilBulk() Reply { return Reply{Type: TypeBulk, Nil: true} }

// Array builds an array reply.
func Array(elems ...Reply) Reply { return Reply{Type: TypeArray, Elems: elems} }

// Push builds a RESP3 push frame.
func Push(elems ...Reply) Reply { return Reply{Type: TypePush, Elems: elems} }
