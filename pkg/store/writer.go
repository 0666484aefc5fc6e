package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Writer is the result a transformation step hands back to the engine: something that knows
// how to materialise itself into the step's output dataset.
type Writer interface {
	Apply(ctx context.Context, output *Dataset) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, output *Dataset) error

func (f WriterFunc) Apply(ctx context.Context, output *Dataset) error {
	return f(ctx, output)
}

type streamWriter struct {
	opts WriterOptions
	body func(w io.Writer) error
}

func (s *streamWriter) Apply(ctx context.Context, output *Dataset) error {
	sink, err := output.Writer(ctx, s.opts)
	if err != nil {
		return err
	}

	if err := s.body(sink); err != nil {
		_ = sink.Cancel()

		return err
	}

	return sink.Commit(ctx)
}

// WriteJSON writes v as a JSON document.
func WriteJSON(name, description string, v any) Writer {
	return &streamWriter{
		opts: WriterOptions{Name: name, Description: description, MimeType: "application/json"},
		body: func(w io.Writer) error {
			if err := json.NewEncoder(w).Encode(v); err != nil {
				return fmt.Errorf("failed to encode json dataset: %w", err)
			}

			return nil
		},
	}
}

// WriteBytes writes b verbatim.
func WriteBytes(name, description, mimeType string, b []byte) Writer {
	return WriteFrom(name, description, mimeType, bytes.NewReader(b))
}

// WriteFrom streams r into the dataset.
func WriteFrom(name, description, mimeType string, r io.Reader) Writer {
	return &streamWriter{
		opts: WriterOptions{Name: name, Description: description, MimeType: mimeType},
		body: func(w io.Writer) error {
			if _, err := io.Copy(w, r); err != nil {
				return fmt.Errorf("failed to copy dataset bytes: %w", err)
			}

			return nil
		},
	}
}

// ReadJSON decodes the dataset bytes into v.
func ReadJSON(ctx context.Context, ds *Dataset, v any) error {
	body, err := ds.Reader(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode json dataset %s: %w", ds, err)
	}

	return nil
}
