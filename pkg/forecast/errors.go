package forecast

import "errors"

var (
	// ErrTransport indicates a network or I/O failure, including timeouts.
	ErrTransport = errors.New("forecast transport error")
	// ErrDecode indicates malformed JSON or a schema mismatch.
	ErrDecode = errors.New("forecast decode error")
	// ErrNotFound indicates an allergen or interval absent from the manifest.
	ErrNotFound = errors.New("forecast not found")
	// ErrCancelled indicates a fetch superseded by a newer one. It is never shown to users.
	ErrCancelled = errors.New("forecast fetch cancelled")
)

// Kind names a logical fetch kind. At most one fetch per kind is in flight.
type Kind string

const (
	KindManifest Kind = "manifest"
	KindArea     Kind = "area"
)
