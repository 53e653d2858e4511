package types

import (
	"fmt"

	"golang.org/x/xerrors"
)

// ErrInvalidIdentifier is returned when a package name or version is empty.
var ErrInvalidIdentifier = xerrors.New("invalid package identifier")

// IdentifierError names the field of a PackageID that failed validation.
type IdentifierError struct {
	Field   string
	Name    string
	Version string
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("%s: empty %s (name=%q, version=%q)", ErrInvalidIdentifier, e.Field, e.Name, e.Version)
}

func (e *IdentifierError) Unwrap() error {
	return ErrInvalidIdentifier
}

// PackageID identifies a resolved package. Two IDs are equal when both fields are equal.
type PackageID struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func NewPackageID(name, version string) (PackageID, error) {
	if name == "" {
		return PackageID{}, &IdentifierError{Field: "name", Name: name, Version: version}
	}
	if version == "" {
		return PackageID{}, &IdentifierError{Field: "version", Name: name, Version: version}
	}
	return PackageID{Name: name, Version: version}, nil
}

func (p PackageID) String() string {
	return p.Name + "@" + p.Version
}

// Adjacency maps a package name to the ordered names of its dependencies.
// It comes straight from a lockfile and may contain cycles.
type Adjacency map[string][]string

// Clone returns a deep copy so callers can filter without touching the original relation.
func (a Adjacency) Clone() Adjacency {
	out := make(Adjacency, len(a))
	for name, deps := range a {
		out[name] = append([]string(nil), deps...)
	}
	return out
}
