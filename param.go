package cadence

import (
	"fmt"
	"strconv"
	"strings"
)

// ParamKind identifies the value type of a parameter.
type ParamKind int

const (
	ParamString ParamKind = iota
	ParamFloat
	ParamInt
	ParamBool
)

func (k ParamKind) String() string {
	switch k {
	case ParamString:
		return "String"
	case ParamFloat:
		return "Float"
	case ParamInt:
		return "Int"
	case ParamBool:
		return "Bool"
	default:
		return "Unknown"
	}
}

// Parameter describes one positional node parameter.
type Parameter struct {
	Kind ParamKind
	Name string
}

// ParamValue is a tagged parameter value. Assigning across kinds is a
// caller contract violation and panics.
type ParamValue struct {
	kind ParamKind
	s    string
	f    float64
	i    int64
	b    bool
}

func StringValue(s string) ParamValue { return ParamValue{kind: ParamString, s: s} }
func FloatValue(f float64) ParamValue { return ParamValue{kind: ParamFloat, f: f} }
func IntValue(i int64) ParamValue     { return ParamValue{kind: ParamInt, i: i} }
func BoolValue(b bool) ParamValue     { return ParamValue{kind: ParamBool, b: b} }

func (v ParamValue) Kind() ParamKind { return v.kind }

// Str returns the string payload; panics on kind mismatch.
func (v ParamValue) Str() string {
	if v.kind != ParamString {
		panic(fmt.Sprintf("can't read String from %s value", v.kind))
	}
	return v.s
}

// Float returns the float payload; panics on kind mismatch.
func (v ParamValue) Float() float64 {
	if v.kind != ParamFloat {
		panic(fmt.Sprintf("can't read Float from %s value", v.kind))
	}
	return v.f
}

// Int returns the integer payload; panics on kind mismatch.
func (v ParamValue) Int() int64 {
	if v.kind != ParamInt {
		panic(fmt.Sprintf("can't read Int from %s value", v.kind))
	}
	return v.i
}

// Bool returns the boolean payload; panics on kind mismatch.
func (v ParamValue) Bool() bool {
	if v.kind != ParamBool {
		panic(fmt.Sprintf("can't read Bool from %s value", v.kind))
	}
	return v.b
}

// Set overwrites the payload with another value of the same kind.
func (v *ParamValue) Set(o ParamValue) {
	if v.kind != o.kind {
		panic(fmt.Sprintf("mismatched ParamKind assignment (%s, %s)", v.Encode(), o.Encode()))
	}
	*v = o
}

// Encode renders the value in its textual project-file form.
func (v ParamValue) Encode() string {
	switch v.kind {
	case ParamString:
		return "s:" + v.s
	case ParamFloat:
		return "f:" + strconv.FormatFloat(v.f, 'g', -1, 64)
	case ParamInt:
		return "i:" + strconv.FormatInt(v.i, 10)
	case ParamBool:
		return "b:" + strconv.FormatBool(v.b)
	default:
		return "?"
	}
}

func (v ParamValue) String() string { return v.Encode() }

// ParseParamValue parses the `s:`/`f:`/`i:`/`b:` textual form.
func ParseParamValue(text string) (ParamValue, error) {
	if len(text) < 2 || text[1] != ':' {
		return ParamValue{}, fmt.Errorf("malformed typed value %q", text)
	}

	body := text[2:]

	switch text[0] {
	case 's':
		return StringValue(body), nil
	case 'f':
		f, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return ParamValue{}, fmt.Errorf("malformed float value %q: %w", text, err)
		}
		return FloatValue(f), nil
	case 'i':
		i, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return ParamValue{}, fmt.Errorf("malformed int value %q: %w", text, err)
		}
		return IntValue(i), nil
	case 'b':
		b, err := strconv.ParseBool(body)
		if err != nil {
			return ParamValue{}, fmt.Errorf("malformed bool value %q: %w", text, err)
		}
		return BoolValue(b), nil
	default:
		return ParamValue{}, fmt.Errorf("invalid value prefix %q", string(text[0]))
	}
}

// defaultForKind is the zero value carried by a freshly created
// parameter slot before any assignment.
func defaultForKind(k ParamKind) ParamValue {
	return ParamValue{kind: k}
}

func validateKey(key string) {
	if strings.ContainsAny(key, " \t\r\n") {
		panic(fmt.Sprintf("whitespace not allowed in key %q", key))
	}
}
