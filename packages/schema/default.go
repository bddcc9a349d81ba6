package schema

import (
	"bytes"
	_ "embed"
)

//go:embed data/kinematics_calc.json
var defaultDocument []byte

// Default returns the bundled loading-stand schema. Each call returns a
// fresh copy.
func Default() (*Schema, error) {
	s, err := Decode(bytes.NewReader(defaultDocument))
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustDefault is like Default but panics, the bundled document being part
// of the build.
func MustDefault() *Schema {
	s, err := Default()
	if err != nil {
		panic(err)
	}
	return s
}
