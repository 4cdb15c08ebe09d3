package hotreload

import (
	"errors"
	"fmt"
	"go/token"
)

var (
	// ErrMissingSymbol occurs when the artifact does not export a site's symbol.
	ErrMissingSymbol = errors.New("missing symbol")
	// ErrSignatureMismatch occurs when an exported symbol does not have the site's function type.
	ErrSignatureMismatch = errors.New("symbol signature mismatch")
	// ErrInvalidSymbol occurs when a site name does not derive an exported identifier.
	ErrInvalidSymbol = errors.New("invalid symbol name")
	// ErrUnsupported occurs when the artifact kind can not be loaded on this platform.
	ErrUnsupported = errors.New("artifact loading unsupported")
	// ErrNoOpener occurs when no Opener is available for the configured backend.
	ErrNoOpener = errors.New("no artifact opener")
	// ErrInvalidConfig occurs when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid config")
)

// SymbolName derives the exported symbol of a call site. Functions keep their name, methods
// become Receiver_Name since only package level symbols can be exported by an artifact.
func SymbolName(receiver, name string) string {
	if receiver == "" {
		return name
	}
	return receiver + "_" + name
}

// ValidSymbol reports whether sym can be exported by an artifact.
func ValidSymbol(sym string) error {
	if !token.IsIdentifier(sym) || !token.IsExported(sym) {
		return fmt.Errorf("%w: %q is not an exported identifier", ErrInvalidSymbol, sym)
	}
	return nil
}
