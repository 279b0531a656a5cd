package endpoint

import (
	"encoding"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

var defaultFieldLimit int = 16 * 1024 // 16KB

// Unmarshal populates dst (must be a non-nil pointer) from the request.
//
// Supported structtags:
//   - `header:"name"`: r.Header
//   - `maxLength:"n"` to set the maximum byte length for a field value
//
// If no data is present for a field, it is left unchanged. Slice fields
// collect every value of a repeated header, other fields take the first.
//
// If `maxLength` is absent, a default limit of 16KB is enforced. Use
// `maxLength:"0"` for no limit. Values over the limit are a 413.
//
// The body is left unread for the endpoint function.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}

	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct (or pointer to struct)"))
	}

	t := root.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, has := sf.Tag.Lookup("header")
		if !has {
			continue
		}
		if name = strings.TrimSpace(name); name == "" {
			name = sf.Name
		}
		limit, err := fieldLengthLimit(sf)
		if err != nil {
			return err
		}
		// Access the map directly to tell present-but-empty from missing.
		values := r.Header[http.CanonicalHeaderKey(name)]
		if len(values) == 0 {
			continue
		}
		for _, val := range values {
			if limit > 0 && len(val) > limit {
				return newEndpointError(http.StatusRequestEntityTooLarge, "", fmt.Errorf("endpoint: decode: header %q -> %s: value exceeds max length %d", name, sf.Name, limit))
			}
		}
		if err := setFieldFromValues(root.Field(i), values); err != nil {
			var ee *EndpointError
			if errors.As(err, &ee) {
				return err
			}
			return newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: header %q -> %s: %w", name, sf.Name, err))
		}
	}
	return nil
}

// RequestMediaType returns the lowercased media type of the request body,
// without parameters, or "" when no Content-Type is set.
func RequestMediaType(r *http.Request) string {
	if r == nil {
		return ""
	}
	ct := strings.TrimSpace(r.Header.Get("Content-Type"))
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(ct)
	}
	return strings.ToLower(mt)
}

// IsJSONMediaType reports whether mt is application/json or a +json type.
func IsJSONMediaType(mt string) bool {
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func fieldLengthLimit(sf reflect.StructField) (int, error) {
	val, has := sf.Tag.Lookup("maxLength")
	if !has {
		return defaultFieldLimit, nil
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("maxLength: invalid integer %q", val))
	}
	if n < 0 {
		return 0, newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("maxLength: must be >= 0"))
	}
	return n, nil
}

func setFieldFromValues(v reflect.Value, values []string) error {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}

	if v.Kind() == reflect.Slice {
		slice := reflect.MakeSlice(v.Type(), 0, len(values))
		for _, val := range values {
			elem := reflect.New(v.Type().Elem()).Elem()
			if err := setFieldFromString(elem, val); err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
		v.Set(slice)
		return nil
	}
	return setFieldFromString(v, values[0])
}

func setFieldFromString(v reflect.Value, s string) error {
	if !v.CanSet() || !v.CanAddr() {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("field is not settable"))
	}

	if u, ok := v.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText([]byte(s))
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
		return nil
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
		return nil
	}
	return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("unsupported kind %s", v.Kind()))
}
