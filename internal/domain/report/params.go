package report

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/orchard/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ParamKind is the canonical kind a parameter value is coerced to
type ParamKind string

const (
	ParamKindNull   ParamKind = "null"
	ParamKindBool   ParamKind = "bool"
	ParamKindNumber ParamKind = "number"
	ParamKindString ParamKind = "string"
	ParamKindDate   ParamKind = "date"
	ParamKindList   ParamKind = "list"
)

// Param is one canonicalized (name, kind, value) triple
type Param struct {
	Name  string    `json:"name"`
	Kind  ParamKind `json:"kind"`
	Value string    `json:"value"`
}

// Params is an ordered set of parameters, sorted by name with unique names.
// The zero value is an empty set.
type Params struct {
	items []Param
}

// NewParams canonicalizes a loosely typed mapping. Integers, floats, decimals
// and strings in plain decimal notation collapse to the same number text, so
// 1, "1", "1.0" and 1.0 are equal. Strings such as "007", "1e3" or "+1" stay
// strings, and "true" is not the bool true. Values that have no stable
// textual form fail with INVALID_PARAMETER.
func NewParams(values map[string]any) (Params, error) {
	var p Params
	for name, v := range values {
		var err error
		p, err = p.With(name, v)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}

// MustParams is NewParams for static parameter sets; it panics on error
func MustParams(values map[string]any) Params {
	p, err := NewParams(values)
	if err != nil {
		panic(err)
	}
	return p
}

// With returns a copy of p with name set to v
func (p Params) With(name string, v any) (Params, error) {
	if name == "" {
		return Params{}, shared.InvalidParameterf("parameter name must not be empty")
	}
	kind, text, err := canonicalValue(v)
	if err != nil {
		return Params{}, shared.InvalidParameterf("parameter %q: %v", name, err)
	}

	items := make([]Param, 0, len(p.items)+1)
	replaced := false
	for _, it := range p.items {
		if it.Name == name {
			items = append(items, Param{Name: name, Kind: kind, Value: text})
			replaced = true
			continue
		}
		items = append(items, it)
	}
	if !replaced {
		items = append(items, Param{Name: name, Kind: kind, Value: text})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return Params{items: items}, nil
}

// Items returns a copy of the canonical triples in name order
func (p Params) Items() []Param {
	out := make([]Param, len(p.items))
	copy(out, p.items)
	return out
}

// Get returns the canonical value of name
func (p Params) Get(name string) (Param, bool) {
	i := sort.Search(len(p.items), func(i int) bool { return p.items[i].Name >= name })
	if i < len(p.items) && p.items[i].Name == name {
		return p.items[i], true
	}
	return Param{}, false
}

// Len returns the number of parameters
func (p Params) Len() int {
	return len(p.items)
}

func canonicalValue(v any) (ParamKind, string, error) {
	switch val := v.(type) {
	case nil:
		return ParamKindNull, "", nil
	case bool:
		return ParamKindBool, strconv.FormatBool(val), nil
	case string:
		return canonicalString(val)
	case uuid.UUID:
		return ParamKindString, val.String(), nil
	case decimal.Decimal:
		return ParamKindNumber, val.String(), nil
	case time.Time:
		return ParamKindDate, FormatDate(val), nil
	case json.Number:
		if d, err := decimal.NewFromString(val.String()); err == nil {
			return ParamKindNumber, d.String(), nil
		}
		return canonicalString(val.String())
	case fmt.Stringer:
		// named string types with their own rendering
		if reflect.TypeOf(v).Kind() == reflect.String {
			return canonicalString(val.String())
		}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return ParamKindNumber, decimal.NewFromInt(rv.Int()).String(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return ParamKindNumber, strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", "", fmt.Errorf("non-finite number %v", f)
		}
		return ParamKindNumber, decimal.NewFromFloat(f).String(), nil
	case reflect.String:
		return canonicalString(rv.String())
	case reflect.Pointer:
		if rv.IsNil() {
			return ParamKindNull, "", nil
		}
		return canonicalValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		return canonicalList(rv)
	default:
		return "", "", fmt.Errorf("value of type %T is not serializable", v)
	}
}

// numericText matches plain decimal notation: no sign other than a leading
// minus, no leading zeros, no exponent.
var numericText = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?$`)

func canonicalString(s string) (ParamKind, string, error) {
	if numericText.MatchString(s) {
		if d, err := decimal.NewFromString(s); err == nil {
			return ParamKindNumber, d.String(), nil
		}
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return ParamKindDate, FormatDate(t), nil
	}
	return ParamKindString, s, nil
}

func canonicalList(rv reflect.Value) (ParamKind, string, error) {
	elems := make([][2]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		kind, text, err := canonicalValue(rv.Index(i).Interface())
		if err != nil {
			return "", "", fmt.Errorf("element %d: %w", i, err)
		}
		if kind == ParamKindList {
			return "", "", fmt.Errorf("element %d: nested lists are not supported", i)
		}
		elems = append(elems, [2]string{string(kind), text})
	}
	b, err := json.Marshal(elems)
	if err != nil {
		return "", "", err
	}
	return ParamKindList, string(b), nil
}
