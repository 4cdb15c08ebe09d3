package hotreload

import (
	"fmt"
	"reflect"
	"unsafe"
)

type (
	// Symbol resolved from a loaded artifact. It holds either a typed value or a raw code entry.
	Symbol struct {
		Name  string
		value any
		code  unsafe.Pointer
	}
	// Capability is one loaded artifact: load-by-path happened, it resolves by name.
	//
	// This is the trusted boundary of the module: a Symbol carrying a raw code entry is called with
	// the signature of the site resolving it, without any verification.
	Capability interface {
		Path() string                       //artifact path it was opened from
		Lookup(name string) (Symbol, error) //resolve a symbol, ErrMissingSymbol when absent
		Symbols() []string                  //exported symbols if the backend can enumerate them
	}
	// Opener loads artifacts.
	Opener interface {
		Open(path string) (Capability, error)
	}
	// OpenerFunc adapts a function to Opener.
	OpenerFunc func(path string) (Capability, error)
)

func (f OpenerFunc) Open(path string) (Capability, error) {
	return f(path)
}

// ValueSymbol of a typed value, as returned by the standard plugin package.
func ValueSymbol(name string, v any) Symbol {
	return Symbol{Name: name, value: v}
}

// CodeSymbol of a raw function entry address.
func CodeSymbol(name string, entry uintptr) Symbol {
	p := new(uintptr)
	*p = entry
	return Symbol{Name: name, code: unsafe.Pointer(p)}
}

// Resolve the symbol as F.
//
// Typed symbols are asserted to F or *F (an exported variable of type F), a mismatch is ErrSignatureMismatch.
// Code symbols are cast to F, which must be a function type; a different signature than the compiled one
// is undefined behaviour.
func Resolve[F any](s Symbol) (f F, err error) {
	if s.code != nil {
		if t := reflect.TypeOf((*F)(nil)).Elem(); t.Kind() != reflect.Func {
			return f, fmt.Errorf("%w: %s resolved as non function %s", ErrSignatureMismatch, s.Name, t)
		}
		return As[F](s.code), nil
	}
	switch v := s.value.(type) {
	case F:
		return v, nil
	case *F:
		if v != nil {
			return *v, nil
		}
	}
	return f, fmt.Errorf("%w: %s is %T, want %T", ErrSignatureMismatch, s.Name, s.value, f)
}

// As convert a code entry holder to function type T.
//
// A func value points at a closure record whose first word is the code address; entry is such a record.
func As[T any](entry unsafe.Pointer) (x T) {
	px := (*T)(unsafe.Pointer(&entry))
	x = *px
	return
}
