package match

// BindScope controls how long capture-token bindings live.
type BindScope int

const (
	// BindScopeExample discards bindings after each example. Reset must
	// be called between examples.
	BindScopeExample BindScope = iota

	// BindScopeFile keeps bindings for the whole transcript file, so a
	// value captured in one example constrains later examples.
	BindScopeFile
)

// Bindings records the values captured by "{{name}}" tokens. The first
// occurrence of a name binds; later occurrences verify.
type Bindings struct {
	scope BindScope
	vals  map[string]string
}

// NewBindings creates an empty binding set with the given scope.
func NewBindings(scope BindScope) *Bindings {
	return &Bindings{scope: scope, vals: map[string]string{}}
}

// Scope returns the binding scope.
func (b *Bindings) Scope() BindScope { return b.scope }

// Lookup returns the bound value for name, if any.
func (b *Bindings) Lookup(name string) (string, bool) {
	v, ok := b.vals[name]
	return v, ok
}

// Bind records a value for name. Binding an already-bound name is a
// no-op; verification happens during matching.
func (b *Bindings) Bind(name, val string) {
	if _, ok := b.vals[name]; !ok {
		b.vals[name] = val
	}
}

// EndExample is called by the runner after each example. Example-scoped
// bindings are discarded; file-scoped bindings persist.
func (b *Bindings) EndExample() {
	if b.scope == BindScopeExample {
		b.vals = map[string]string{}
	}
}
