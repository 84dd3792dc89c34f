package entity

import "strings"

// bcryptPrefix tags every hash produced by the hashing service.
const bcryptPrefix = "$2"

// StoredPassword is the persisted password column, classified once when the
// row is read: either a one-way hash or a legacy plaintext value awaiting
// migration.
type StoredPassword struct {
	value  string
	hashed bool
}

// ParseStoredPassword classifies a raw column value.
func ParseStoredPassword(raw string) StoredPassword {
	return StoredPassword{value: raw, hashed: strings.HasPrefix(raw, bcryptPrefix)}
}

// HashedPassword wraps a freshly produced hash.
func HashedPassword(hash string) StoredPassword {
	return StoredPassword{value: hash, hashed: true}
}

func (p StoredPassword) IsHashed() bool { return p.hashed }

// IsLegacy reports a non-empty plaintext value.
func (p StoredPassword) IsLegacy() bool { return !p.hashed && p.value != "" }

// Value returns the raw column value for persistence.
func (p StoredPassword) Value() string { return p.value }

// String never exposes the stored value.
func (p StoredPassword) String() string {
	switch {
	case p.hashed:
		return "hashed"
	case p.value != "":
		return "legacy"
	default:
		return "empty"
	}
}
