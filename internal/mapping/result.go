package mapping

import "github.com/tidwall/gjson"

// Transform converts one raw payload field into the attributes it feeds.
type Transform func(value gjson.Result) (Result, error)

// Rules maps payload keys to the transform handling them.
type Rules map[string]Transform

// Target is a record the mapper can populate.
type Target interface {
	Rules() Rules
}

type resultKind int

const (
	kindDrop resultKind = iota
	kindScalar
	kindFields
)

// Result is what a Transform produced: a single value stored under the
// original key, a set of attributes, or nothing.
type Result struct {
	kind   resultKind
	value  any
	fields map[string]any
}

// Scalar stores v under the key the transform was registered for.
func Scalar(v any) Result {
	return Result{kind: kindScalar, value: v}
}

// Fields stores every entry of fields as its own attribute.
func Fields(fields map[string]any) Result {
	return Result{kind: kindFields, fields: fields}
}

// Drop discards the field.
func Drop() Result {
	return Result{kind: kindDrop}
}

// IsDrop reports whether the result carries nothing.
func (r Result) IsDrop() bool {
	return r.kind == kindDrop
}

func (r Result) merge(key string, target Target) error {
	switch r.kind {
	case kindScalar:
		return store(target, key, r.value)
	case kindFields:
		for name, value := range r.fields {
			if err := store(target, name, value); err != nil {
				return err
			}
		}
	}
	return nil
}
