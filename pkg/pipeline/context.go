package pipeline

import (
	"log/slog"
	"sync"
)

// Registry owns the single active registration context. Only one context may be open at a
// time; nodes are registered into whichever one is open.
type Registry struct {
	mu     sync.Mutex
	active *Context
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger.With("module", "registration")}
}

// Open installs a new context as the active one.
func (r *Registry) Open() (*Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return nil, ErrAlreadyOpen
	}

	r.active = &Context{
		registry: r,
		logger:   r.logger,
		index:    make(map[entryKey]*Node),
	}

	return r.active, nil
}

// Scope opens a context, runs fn with it and closes it again, even when fn panics.
func (r *Registry) Scope(fn func(c *Context) error) (*Context, error) {
	c, err := r.Open()
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err := fn(c); err != nil {
		return c, err
	}

	return c, nil
}

// Active returns the open context, or nil.
func (r *Registry) Active() *Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.active
}

// Register adds node to the active context.
func (r *Registry) Register(module string, node *Node) (*Node, error) {
	c := r.Active()
	if c == nil {
		return nil, ErrNoActiveContext
	}

	return c.Register(module, node), nil
}

// Nodes returns the nodes of the active context, or nil when no context is open.
func (r *Registry) Nodes() []*Node {
	c := r.Active()
	if c == nil {
		return nil
	}

	return c.Nodes()
}

func (r *Registry) release(c *Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == c {
		r.active = nil
	}
}

type entryKey struct {
	module string
	id     string
}

// Context collects the nodes registered during one loading pass, keyed by module and
// structural id.
type Context struct {
	registry *Registry
	logger   *slog.Logger
	order    []*Node
	index    map[entryKey]*Node
}

// Register stores node under (module, node.ID()). When the key is taken the new node is
// skipped with a warning and the first one is returned.
func (c *Context) Register(module string, node *Node) *Node {
	key := entryKey{module: module, id: node.ID()}

	if existing, ok := c.index[key]; ok {
		c.logger.Warn("Skipping duplicate step definition",
			"id", node.ID(),
			"name", node.Name(),
			"file", node.File(),
			"module", module,
			"kept_file", existing.File(),
		)

		return existing
	}

	c.index[key] = node
	c.order = append(c.order, node)

	return node
}

// Nodes returns registered nodes in registration order.
func (c *Context) Nodes() []*Node {
	out := make([]*Node, len(c.order))
	copy(out, c.order)

	return out
}

// Close releases the context. It is safe to call more than once.
func (c *Context) Close() {
	c.registry.release(c)
}

// Module returns a registrar that files nodes under module.
func (c *Context) Module(module string) *Module {
	return &Module{name: module, context: c}
}

// Module registers steps on behalf of one pipeline module.
type Module struct {
	name    string
	context *Context
}

func (m *Module) Name() string {
	return m.name
}

// Step declares and registers a transformation step.
func (m *Module) Step(decl Declaration, fn TransformFunc) (*Node, error) {
	node, err := Step(decl, fn)
	if err != nil {
		return nil, err
	}

	return m.context.Register(m.name, node), nil
}

// Raw declares and registers a raw ingestion step located at the caller.
func (m *Module) Raw(decl Declaration, src RawSource) (*Node, error) {
	node, err := NewNode(decl, &RawIngest{Source: src}, CallerSource(1))
	if err != nil {
		return nil, err
	}

	return m.context.Register(m.name, node), nil
}

// Register adds an already built node.
func (m *Module) Register(node *Node) *Node {
	return m.context.Register(m.name, node)
}
