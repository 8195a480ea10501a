package scope

// PathList is an explicit, injectable ordered search path. It stands in
// for process-global search state: components that resolve modules or
// project files receive a *PathList by reference, and guards swap its
// contents rather than mutating a global.
type PathList struct {
	paths []string
}

// NewPathList creates a search path with the given initial entries.
func NewPathList(paths ...string) *PathList {
	return &PathList{paths: append([]string(nil), paths...)}
}

// Paths returns a copy of the current entries.
func (l *PathList) Paths() []string {
	return append([]string(nil), l.paths...)
}

// Set replaces the entries.
func (l *PathList) Set(paths []string) {
	l.paths = append([]string(nil), paths...)
}

// SearchPathOpts describe the replacement list for a SearchPath guard.
// Replace, when non-nil, becomes the whole list; otherwise the current
// list is kept with Prepend/Append applied around it.
type SearchPathOpts struct {
	Replace []string
	Prepend []string
	Append  []string
}

// SearchPath installs a replacement search list on l and returns a
// Restore that reinstates the original list.
func SearchPath(l *PathList, opts SearchPathOpts) Restore {
	prev := l.Paths()

	next := opts.Replace
	if next == nil {
		next = prev
	}
	if len(opts.Prepend) > 0 {
		next = append(append([]string(nil), opts.Prepend...), next...)
	}
	if len(opts.Append) > 0 {
		next = append(append([]string(nil), next...), opts.Append...)
	}
	l.Set(next)

	return func() {
		l.Set(prev)
	}
}
