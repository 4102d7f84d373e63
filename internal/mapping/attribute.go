package mapping

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx/reflectx"
	"github.com/tidwall/gjson"
)

// ErrFieldType is returned when a value cannot be stored in the attribute it
// was routed to.
var ErrFieldType = errors.New("mapping: incompatible attribute value")

// Attributes are the db column names of a record, so a mapped record can be
// written as-is.
var attributes = reflectx.NewMapper("db")

// Set stores value in the attribute of target named name. It reports false
// when target has no such attribute or value carries nothing to store.
func Set(target any, name string, value any) (bool, error) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return false, fmt.Errorf("mapping: target %T is not a pointer to a struct", target)
	}
	if name == "" || strings.Contains(name, ".") {
		return false, nil
	}

	rv = rv.Elem()
	fi := attributes.TypeMap(rv.Type()).GetByPath(name)
	if fi == nil {
		return false, nil
	}
	field := rv.FieldByIndex(fi.Index)
	if !field.CanSet() {
		return false, nil
	}

	var (
		ok  bool
		err error
	)
	if raw, isJSON := value.(gjson.Result); isJSON {
		ok, err = assignJSON(field, raw)
	} else {
		ok, err = assignValue(field, value)
	}
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrFieldType, name, err)
	}
	return ok, nil
}

// store sets an attribute for the mapper. A value that does not fit its
// attribute is logged and skipped so one odd field never costs the record.
func store(target any, name string, value any) error {
	_, err := Set(target, name, value)
	if errors.Is(err, ErrFieldType) {
		slog.Warn("skipping attribute", "record", fmt.Sprintf("%T", target), "attribute", name, "error", err)
		return nil
	}
	return err
}

func assignValue(field reflect.Value, value any) (bool, error) {
	if value == nil {
		return false, nil
	}
	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(field.Type()):
		field.Set(rv)
	case isNumeric(rv.Kind()) && isNumeric(field.Kind()):
		field.Set(rv.Convert(field.Type()))
	case rv.Kind() == reflect.String && field.Kind() == reflect.String:
		field.SetString(rv.String())
	default:
		return false, fmt.Errorf("cannot store %T in %s", value, field.Type())
	}
	return true, nil
}

func assignJSON(field reflect.Value, v gjson.Result) (bool, error) {
	if !v.Exists() || v.Type == gjson.Null {
		return false, nil
	}
	// owned records are only ever assigned by the transform that builds them
	if isRecord(field.Type()) {
		return false, nil
	}
	if v.Type == gjson.JSON {
		return false, fmt.Errorf("cannot store %s in %s", describe(v), field.Type())
	}

	switch field.Kind() {
	case reflect.Pointer:
		elem := reflect.New(field.Type().Elem())
		ok, err := assignJSON(elem.Elem(), v)
		if !ok || err != nil {
			return false, err
		}
		field.Set(elem)
	case reflect.String:
		field.SetString(v.String())
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, ok, err := jsonInt(v)
		if !ok || err != nil {
			return false, err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, ok, err := jsonFloat(v)
		if !ok || err != nil {
			return false, err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, ok, err := jsonBool(v)
		if !ok || err != nil {
			return false, err
		}
		field.SetBool(b)
	default:
		return false, fmt.Errorf("cannot store %s in %s", describe(v), field.Type())
	}
	return true, nil
}

func jsonInt(v gjson.Result) (int64, bool, error) {
	switch v.Type {
	case gjson.Number:
		if n, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
			return n, true, nil
		}
		if v.Num != math.Trunc(v.Num) {
			return 0, false, fmt.Errorf("%s is not an integer", v.Raw)
		}
		return int64(v.Num), true, nil
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%q is not an integer", s)
		}
		return n, true, nil
	case gjson.True:
		return 1, true, nil
	case gjson.False:
		return 0, true, nil
	}
	return 0, false, nil
}

func jsonFloat(v gjson.Result) (float64, bool, error) {
	switch v.Type {
	case gjson.Number:
		return v.Num, true, nil
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%q is not a number", s)
		}
		return f, true, nil
	}
	return 0, false, fmt.Errorf("cannot read %s as a number", describe(v))
}

func jsonBool(v gjson.Result) (bool, bool, error) {
	switch v.Type {
	case gjson.True:
		return true, true, nil
	case gjson.False:
		return false, true, nil
	case gjson.Number:
		return v.Num != 0, true, nil
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return false, false, nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return false, false, fmt.Errorf("%q is not a boolean", s)
		}
		return b, true, nil
	}
	return false, false, nil
}

func isRecord(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func describe(v gjson.Result) string {
	switch {
	case v.IsObject():
		return "object"
	case v.IsArray():
		return "list"
	}
	return v.Type.String()
}
