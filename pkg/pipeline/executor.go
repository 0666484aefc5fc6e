package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/quartictech/quartic/pkg/dataset"
	"github.com/quartictech/quartic/pkg/store"
)

// ExecutionContext carries what an executor needs to reach the store.
type ExecutionContext struct {
	Store     *store.Store
	Namespace string
	Logger    *slog.Logger
}

// Resolve qualifies c against the context namespace and returns its handle.
func (ec *ExecutionContext) Resolve(c dataset.Coordinate) (*store.Dataset, error) {
	return ec.Store.Resolve(c.FullyQualified(ec.Namespace))
}

// Executor is the strategy a node runs with.
type Executor interface {
	Execute(ctx context.Context, ec *ExecutionContext, params []Param, output dataset.Coordinate) error
	Describe() map[string]any
}

// Inputs are the resolved parameters handed to a transformation.
type Inputs struct {
	single map[string]*store.Dataset
	groups map[string]map[string]*store.Dataset
}

// Dataset returns the dataset bound to a single-dataset parameter, or nil.
func (in Inputs) Dataset(name string) *store.Dataset {
	return in.single[name]
}

// Group returns the datasets bound to a fan-in parameter, or nil.
func (in Inputs) Group(name string) map[string]*store.Dataset {
	return in.groups[name]
}

// Len returns the number of parameters.
func (in Inputs) Len() int {
	return len(in.single) + len(in.groups)
}

// TransformFunc is the body of an ordinary step.
type TransformFunc func(ctx context.Context, in Inputs) (store.Writer, error)

// Transform calls a user function with resolved inputs and applies the returned writer to
// the output dataset.
type Transform struct {
	Func TransformFunc
}

func (t *Transform) Describe() map[string]any {
	return map[string]any{"type": "step"}
}

func (t *Transform) Execute(ctx context.Context, ec *ExecutionContext, params []Param, output dataset.Coordinate) error {
	in, err := resolveInputs(ec, params)
	if err != nil {
		return err
	}

	out, err := ec.Resolve(output)
	if err != nil {
		return err
	}

	var writer store.Writer

	err = recovering(func() error {
		var callErr error
		writer, callErr = t.Func(ctx, in)

		return callErr
	})
	if err != nil {
		return asCodeError(err)
	}

	if writer == nil {
		return &CodeError{Err: ErrNoWriter}
	}

	// Writer errors come from the store and are passed through; only panics count as user code.
	return recovering(func() error {
		return writer.Apply(ctx, out)
	})
}

func resolveInputs(ec *ExecutionContext, params []Param) (Inputs, error) {
	in := Inputs{
		single: make(map[string]*store.Dataset),
		groups: make(map[string]map[string]*store.Dataset),
	}

	for _, p := range params {
		if p.Dataset != nil {
			ds, err := ec.Resolve(*p.Dataset)
			if err != nil {
				return Inputs{}, fmt.Errorf("failed to resolve input %s: %w", p.Name, err)
			}

			in.single[p.Name] = ds

			continue
		}

		group := make(map[string]*store.Dataset, len(p.Group))

		for _, member := range p.Group {
			ds, err := ec.Resolve(member.Dataset)
			if err != nil {
				return Inputs{}, fmt.Errorf("failed to resolve input %s[%s]: %w", p.Name, member.Key, err)
			}

			group[member.Key] = ds
		}

		in.groups[p.Name] = group
	}

	return in, nil
}

// RawSource supplies the bytes of a raw ingestion step.
type RawSource interface {
	Open(ctx context.Context, ec *ExecutionContext, namespace string) (io.ReadCloser, error)
	Describe() map[string]any
}

// Bucket reads a key from the namespace's managed bucket.
type Bucket struct {
	Key string
}

// FromBucket declares a raw source read from key.
func FromBucket(key string) *Bucket {
	return &Bucket{Key: key}
}

func (b *Bucket) Open(ctx context.Context, ec *ExecutionContext, namespace string) (io.ReadCloser, error) {
	return ec.Store.Download(ctx, namespace, b.Key)
}

func (b *Bucket) Describe() map[string]any {
	return map[string]any{"type": "bucket", "key": b.Key}
}

// RawIngest streams a raw source straight into the output dataset.
type RawIngest struct {
	Source RawSource
}

func (r *RawIngest) Describe() map[string]any {
	return map[string]any{"type": "raw", "source": r.Source.Describe()}
}

func (r *RawIngest) Execute(ctx context.Context, ec *ExecutionContext, params []Param, output dataset.Coordinate) error {
	out, err := ec.Resolve(output)
	if err != nil {
		return err
	}

	namespace := out.Coordinate().Namespace

	body, err := r.Source.Open(ctx, ec, namespace)
	if err != nil {
		return fmt.Errorf("failed to open raw source for %s: %w", out, err)
	}
	defer body.Close()

	return store.WriteFrom(out.Coordinate().ID, "", "", body).Apply(ctx, out)
}

// Guard runs user code outside a step body, such as a module definition, and reports a
// returned error or a panic as a CodeError.
func Guard(f func() error) error {
	if err := recovering(f); err != nil {
		return asCodeError(err)
	}

	return nil
}

// recovering runs f and turns a panic into a CodeError.
func recovering(f func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &CodeError{Panic: recovered, Frame: panicFrame()}
		}
	}()

	return f()
}

func asCodeError(err error) error {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return err
	}

	return &CodeError{Err: err}
}

// panicFrame returns the innermost frame outside the runtime, i.e. where the panic was raised.
func panicFrame() *runtime.Frame {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			return &frame
		}

		if !more {
			return nil
		}
	}
}
