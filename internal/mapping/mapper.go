package mapping

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

const (
	errorsKey = "errors"
	// list elements carry no key of their own
	elementKey = ""
)

var (
	// ErrRejected is returned for payloads signalling an API-level failure
	// through a top-level "errors" entry.
	ErrRejected = errors.New("mapping: payload carries an errors marker")

	// ErrInvalidPayload is returned when the payload is not a JSON object.
	ErrInvalidPayload = errors.New("mapping: payload is not an object")
)

// Apply merges value, found under key, into target.
//
// A transform registered for key always wins. Without one, objects are
// flattened by recursing into their entries and lists by recursing into their
// object or list elements. Remaining scalars are stored when target declares
// an attribute named key and ignored otherwise. Values that cannot be
// coerced into their attribute are skipped.
func Apply(key string, value gjson.Result, target Target) error {
	if transform, ok := target.Rules()[key]; ok {
		res, err := transform(value)
		if err != nil {
			return fmt.Errorf("transform %q: %w", key, err)
		}
		return res.merge(key, target)
	}

	switch {
	case value.IsObject():
		return forEach(value, func(k, v gjson.Result) error {
			return Apply(k.String(), v, target)
		})
	case value.IsArray():
		return forEach(value, func(_, v gjson.Result) error {
			if !v.IsObject() && !v.IsArray() {
				return nil
			}
			return Apply(elementKey, v, target)
		})
	default:
		return store(target, key, value)
	}
}

// Materialize builds a T from a raw payload by applying every top-level
// entry in document order.
func Materialize[T any, PT interface {
	*T
	Target
}](payload gjson.Result) (*T, error) {
	if !payload.IsObject() {
		return nil, ErrInvalidPayload
	}
	if payload.Get(errorsKey).Exists() {
		return nil, ErrRejected
	}

	record := new(T)
	target := PT(record)
	err := forEach(payload, func(k, v gjson.Result) error {
		return Apply(k.String(), v, target)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// First normalizes values the API sends either as one object or as a list of
// objects. Lists yield their first element; anything that is not an object
// is reported as absent.
func First(value gjson.Result) (gjson.Result, bool) {
	if value.IsArray() {
		elems := value.Array()
		if len(elems) == 0 {
			return gjson.Result{}, false
		}
		value = elems[0]
	}
	if !value.IsObject() {
		return gjson.Result{}, false
	}
	return value, true
}

func forEach(value gjson.Result, fn func(key, value gjson.Result) error) error {
	var err error
	value.ForEach(func(k, v gjson.Result) bool {
		err = fn(k, v)
		return err == nil
	})
	return err
}
