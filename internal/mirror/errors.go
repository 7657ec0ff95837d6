package mirror

import "errors"

// Errors returned by mirror operations. Callers classify with errors.Is;
// every returned error wraps exactly one of these or a storage error.
var (
	// ErrIncompatibleSchema means the store was initialized with a
	// different schema or layout version. Use a new file, or discard and
	// re-bootstrap.
	ErrIncompatibleSchema = errors.New("incompatible schema")

	// ErrUnsafeIdentifier means a type or primitive field name cannot be
	// used to form a table or column identifier.
	ErrUnsafeIdentifier = errors.New("unsafe identifier")

	// ErrUnknownType means an operation named a type that is not in the
	// schema.
	ErrUnknownType = errors.New("unknown type")

	// ErrAmbiguousType means an object was registered with a union
	// typename; union members must be registered with their concrete type.
	ErrAmbiguousType = errors.New("ambiguous type")

	// ErrInconsistentType means an id is already registered with a
	// different typename. The existing registration is never overwritten.
	ErrInconsistentType = errors.New("inconsistent type")

	// ErrUnknownConnection means ingestion referenced an owner/field pair
	// that is not registered.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrUnknownObject means own-data ingestion referenced an object that
	// was never registered.
	ErrUnknownObject = errors.New("unknown object")

	// ErrAlreadyInTransaction means a transactional entry point was invoked
	// while the mirror was already inside a transaction. Programmer error.
	ErrAlreadyInTransaction = errors.New("already in transaction")
)
