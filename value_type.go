package recordloader

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-reflect"
)

// ValueType normalizes raw values to the native representation of an attribute.
type ValueType interface {
	// Name returns the name of the type. (e.g. "integer")
	Name() string

	// Cast converts the raw value to the normalized representation.
	// Values that are equal after casting must be equal with ==.
	Cast(raw any) (any, error)
}

// ValueTypeFunc adapts a function to the ValueType interface.
type ValueTypeFunc struct {
	TypeName string
	CastFunc func(raw any) (any, error)
}

var _ ValueType = ValueTypeFunc{}

// Name returns TypeName.
func (t ValueTypeFunc) Name() string {
	return t.TypeName
}

// Cast calls CastFunc.
func (t ValueTypeFunc) Cast(raw any) (any, error) {
	return t.CastFunc(raw)
}

var (
	errNilValue     = errors.New("nil value")
	errOutOfRange   = errors.New("value out of range")
	errNotIntegral  = errors.New("value is not integral")
	errUnsupported  = errors.New("unsupported value type")
	errInvalidInput = errors.New("invalid input")
)

var (
	// Integer casts to int64.
	Integer ValueType = integerType{}

	// String casts to string.
	String ValueType = stringType{}

	// Float casts to float64.
	Float ValueType = floatType{}

	// Boolean casts to bool.
	Boolean ValueType = booleanType{}
)

type integerType struct{}

func (integerType) Name() string { return "integer" }

func (integerType) Cast(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, errNilValue
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case string:
		return parseInteger(v)
	case []byte:
		return parseInteger(string(v))
	case float32:
		return floatToInteger(float64(v))
	case float64:
		return floatToInteger(v)
	case bool:
		return nil, fmt.Errorf("%w: %T", errUnsupported, raw)
	}

	// named types and the remaining sizes
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d", errOutOfRange, u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return floatToInteger(rv.Float())
	case reflect.String:
		return parseInteger(rv.String())
	}
	return nil, fmt.Errorf("%w: %T", errUnsupported, raw)
}

func parseInteger(s string) (any, error) {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errInvalidInput, s)
	}
	return i, nil
}

func floatToInteger(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("%w: %v", errNotIntegral, f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("%w: %v", errOutOfRange, f)
	}
	return int64(f), nil
}

type stringType struct{}

func (stringType) Name() string { return "string" }

func (stringType) Cast(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, errNilValue
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	}
	return nil, fmt.Errorf("%w: %T", errUnsupported, raw)
}

type floatType struct{}

func (floatType) Name() string { return "float" }

func (floatType) Cast(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, errNilValue
	case float64:
		return finiteFloat(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", errInvalidInput, v)
		}
		return finiteFloat(f)
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return finiteFloat(rv.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("%w: %T", errUnsupported, raw)
}

// finiteFloat rejects NaN, which never equals itself and cannot index results.
func finiteFloat(f float64) (any, error) {
	if math.IsNaN(f) {
		return nil, fmt.Errorf("%w: %v", errInvalidInput, f)
	}
	return f, nil
}

type booleanType struct{}

func (booleanType) Name() string { return "boolean" }

func (booleanType) Cast(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, errNilValue
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", errInvalidInput, v)
		}
		return b, nil
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch rv.Int() {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return nil, fmt.Errorf("%w: %d", errInvalidInput, rv.Int())
	}
	return nil, fmt.Errorf("%w: %T", errUnsupported, raw)
}
