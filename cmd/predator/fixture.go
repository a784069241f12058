package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/staticafi/predator/internal/ir"
)

// loadStorage reads a whole-program ir.Storage fixture from a JSON file.
// The lowering front end itself is out of scope (spec.md §1); this is
// the on-disk shape an external front end is expected to hand the
// engine. The repo's own tests do not use it: they build ir values
// directly in Go.
func loadStorage(path string) (*ir.Storage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s ir.Storage
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

func findFunc(s *ir.Storage, name string) (*ir.Function, error) {
	fn := s.FuncByName(name)
	if fn == nil {
		return nil, fmt.Errorf("no function named %q in fixture", name)
	}
	return fn, nil
}
