package purgo

import (
	"fmt"
	"maps"
	"reflect"
	"sort"
)

// Well-known parameter keys shared by the built-in steps.
const (
	KeyDataSourcePath     = "df_path"
	KeyTestDataSourcePath = "test_df_path"
	KeyTrainTable         = "train_df"
	KeyTestTable          = "test_df"
	KeyTableName          = "table_name"
	KeyOutputPath         = "output_path"
	KeyTestOutputPath     = "test_output_path"
	KeyCategoricalColumns = "cat_cols"
	KeyTarget             = "target"
	KeyColumns            = "cols"
	KeyRemoveOutliers     = "remove_outliers"
	KeyReplace            = "replace"
	KeyFirstQuantile      = "first_quartile"
	KeyThirdQuantile      = "third_quartile"
)

// Params is the mutable key-value store shared by every step of a pipeline.
// Every mutation is visible to all later steps. Values are never deleted
// implicitly; a step that does not touch a key leaves it as it was.
//
// Params is not safe for concurrent use: a pipeline runs its steps strictly
// one after another.
type Params struct {
	values map[string]any
}

// NewParams creates a store seeded with a shallow copy of initial.
func NewParams(initial map[string]any) *Params {
	p := &Params{values: make(map[string]any, len(initial))}
	maps.Copy(p.values, initial)
	return p
}

// Get returns the value stored under key.
func (p *Params) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (p *Params) Set(key string, value any) {
	p.values[key] = value
}

// Has reports whether key is present.
func (p *Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Merge copies every entry of values into the store. Existing keys are
// overwritten (later wins).
func (p *Params) Merge(values map[string]any) {
	maps.Copy(p.values, values)
}

// Delete removes key. The pipeline itself never deletes keys.
func (p *Params) Delete(key string) {
	delete(p.values, key)
}

// Len returns the number of keys.
func (p *Params) Len() int {
	return len(p.values)
}

// Keys returns the keys in sorted order.
func (p *Params) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a shallow copy of the store.
func (p *Params) Snapshot() map[string]any {
	out := make(map[string]any, len(p.values))
	maps.Copy(out, p.values)
	return out
}

// String returns the value under key as a string.
// The boolean is false when the key is absent.
func (p *Params) String(key string) (string, bool, error) {
	v, ok := p.values[key]
	if !ok {
		return "", false, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", true, NewInvalidTypeError(key, "string", v)
	}
	return s, true, nil
}

// Bool returns the value under key as a bool.
func (p *Params) Bool(key string) (bool, bool, error) {
	v, ok := p.values[key]
	if !ok {
		return false, false, nil
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, true, NewInvalidTypeError(key, "bool", v)
	}
	return b, true, nil
}

// Float returns the value under key as a float64. Any Go float kind is
// accepted; integers are rejected so that 1 is not mistaken for a fraction.
func (p *Params) Float(key string) (float64, bool, error) {
	v, ok := p.values[key]
	if !ok {
		return 0, false, nil
	}
	switch f := v.(type) {
	case float64:
		return f, true, nil
	case float32:
		return float64(f), true, nil
	default:
		return 0, true, NewInvalidTypeError(key, "float", v)
	}
}

// Strings returns the value under key as a list of strings. Both []string
// and []any holding only strings (as produced by JSON and YAML decoders)
// are accepted. A nil value is an empty list.
func (p *Params) Strings(key string) ([]string, bool, error) {
	v, ok := p.values[key]
	if !ok {
		return nil, false, nil
	}
	list, err := toStrings(key, v)
	return list, true, err
}

// Table returns the value under key as a *Table.
func (p *Params) Table(key string) (*Table, bool, error) {
	v, ok := p.values[key]
	if !ok {
		return nil, false, nil
	}
	t, isTable := v.(*Table)
	if !isTable || t == nil {
		return nil, true, NewInvalidTypeError(key, "*purgo.Table", v)
	}
	return t, true, nil
}

func toStrings(key string, v any) ([]string, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, NewInvalidTypeError(fmt.Sprintf("%s[%d]", key, i), "string", item)
			}
			out[i] = s
		}
		return out, nil
	default:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.String {
			out := make([]string, rv.Len())
			for i := range out {
				out[i] = rv.Index(i).String()
			}
			return out, nil
		}
		return nil, NewInvalidTypeError(key, "list of strings", v)
	}
}
