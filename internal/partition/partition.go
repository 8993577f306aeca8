// Package partition builds the key=value directory layout shared with
// downstream consumers of every artifact this repository writes.
package partition

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Canonical partition field names. Downstream readers depend on these exact
// spellings.
const (
	Year      = "year"
	Geography = "geography"
	Part      = "part"
	State     = "state"
	Origin    = "origin"
	Dataset   = "dataset"
)

// Field is one name=value directory segment.
type Field struct {
	Name  string
	Value string
}

// F is shorthand for Field{Name: name, Value: value}.
func F(name, value string) Field {
	return Field{Name: name, Value: value}
}

// Path joins fields as name=value segments, in order, followed by file.
// The result always uses forward slashes so it can double as an object key.
func Path(fields []Field, file string) string {
	segs := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		segs = append(segs, f.Name+"="+f.Value)
	}
	if file != "" {
		segs = append(segs, file)
	}
	return strings.Join(segs, "/")
}

// Validate rejects fields that would produce an ambiguous path.
func Validate(fields []Field) error {
	for _, f := range fields {
		if f.Name == "" || f.Value == "" {
			return fmt.Errorf("partition field %q has an empty name or value", f.Name)
		}
		if strings.ContainsAny(f.Name+f.Value, "/=\\") {
			return fmt.Errorf("partition field %s=%s contains a reserved character", f.Name, f.Value)
		}
	}
	return nil
}

// Local resolves a partition path beneath root on the local filesystem.
func Local(root string, fields []Field, file string) string {
	return filepath.Join(root, filepath.FromSlash(Path(fields, file)))
}

// EnsureDir creates the parent directory of target if it is missing.
func EnsureDir(target string) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create partition dir %s: %w", dir, err)
	}
	return nil
}
