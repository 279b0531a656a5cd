package jsonrpc

import (
	"encoding/json"
)

// Args are resolved positional arguments. A nil element marks a named
// parameter the caller did not supply.
type Args []json.RawMessage

func (a Args) Len() int { return len(a) }

// Has reports whether argument i was supplied.
func (a Args) Has(i int) bool {
	return i >= 0 && i < len(a) && a[i] != nil
}

// Decode unmarshals argument i into v. A missing argument leaves v
// untouched. Decode failures are InvalidParams errors.
func (a Args) Decode(i int, v any) error {
	if !a.Has(i) {
		return nil
	}
	if err := json.Unmarshal(a[i], v); err != nil {
		return Wrap(CodeInvalidParams, err, CodeText(CodeInvalidParams))
	}
	return nil
}

// Resolve maps params onto a method's declared parameter names.
//
// Positional params are returned unchanged. Named params are placed at the
// index of their name, with nil for names not supplied; a key that matches
// no name is an error. Absent params resolve to no arguments.
func Resolve(p Params, names []string) (Args, *Error) {
	switch p.Kind {
	case ParamsAbsent:
		return Args{}, nil
	case ParamsPositional:
		return Args(p.Positional), nil
	case ParamsNamed:
		args := make(Args, len(names))
		for _, np := range p.Named {
			idx := indexOf(names, np.Name)
			if idx < 0 {
				return nil, codeError(CodeInvalidParams, "unknown param: "+np.Name)
			}
			args[idx] = np.Value
		}
		return args, nil
	}
	return nil, codeError(CodeInvalidParams, "not an object or array")
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
