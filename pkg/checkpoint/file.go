package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// fileSchema is the shape of a checkpoint file: a flat array of "ns::id" strings.
const fileSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "array",
	"items": {
		"type": "string",
		"pattern": "^[^:]*::[^:]+$"
	}
}`

var fileSchemaLoader = gojsonschema.NewStringLoader(fileSchema)

// File keeps the checkpoint in a JSON file. A missing file is an empty checkpoint.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: strings.Replace(path, "file://", "", 1)}
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Load(_ context.Context) (Set, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewSet(), nil
	}

	if err != nil {
		return nil, &Error{Op: "Load", Location: f.path, Err: err}
	}

	if strings.TrimSpace(string(data)) == "" {
		return NewSet(), nil
	}

	if err := validateDocument(data); err != nil {
		return nil, &Error{Op: "Load", Location: f.path, Err: err}
	}

	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, &Error{Op: "Load", Location: f.path, Err: err}
	}

	return set, nil
}

// Save rewrites the whole file through a temporary file in the same directory.
func (f *File) Save(_ context.Context, set Set) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return &Error{Op: "Save", Location: f.path, Err: err}
	}

	dir := filepath.Dir(f.path)

	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return &Error{Op: "Save", Location: f.path, Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return &Error{Op: "Save", Location: f.path, Err: err}
	}

	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return &Error{Op: "Save", Location: f.path, Err: err}
	}

	if err := tmp.Close(); err != nil {
		return &Error{Op: "Save", Location: f.path, Err: err}
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return &Error{Op: "Save", Location: f.path, Err: err}
	}

	return nil
}

func (f *File) Close() error {
	return nil
}

func validateDocument(data []byte) error {
	result, err := gojsonschema.Validate(fileSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}

	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidCheckpoint, strings.Join(problems, "; "))
	}

	return nil
}
