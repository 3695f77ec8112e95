package storage

import "errors"

// ErrNilRecord is returned when a nil fault, strand or entry is stored.
var ErrNilRecord = errors.New("cannot store nil record")

// NotFoundError is returned when a record doesn't exist in the store.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}

	return e.Kind + " not found: " + e.ID
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// CorruptRecordError is returned when a stored record no longer hashes to
// the identity it is stored under.
type CorruptRecordError struct {
	Kind string
	ID   string
	Got  string
}

func (e CorruptRecordError) Error() string {
	return e.Kind + " " + e.ID + " is corrupt: content hashes to " + e.Got
}
