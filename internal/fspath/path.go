package fspath

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Path identifies a filesystem object on the naming server. The zero value is
// the root directory. Paths are immutable; every operation that would modify a
// path returns a new one.
//
// The string form is a forward-slash-delimited sequence of components, with a
// single "/" for the root. Components may not contain "/" or ":"; the slash is
// the delimiter and the colon is reserved for application use.
type Path struct {
	components []string
}

// Root returns the path of the root directory.
func Root() Path {
	return Path{}
}

// New parses a path string. The string must begin with a forward slash and may
// not contain a colon. Empty components are dropped, so "/a//b/" and "/a/b"
// parse to the same path.
func New(raw string) (Path, error) {
	if !strings.HasPrefix(raw, "/") || strings.Contains(raw, ":") {
		return Path{}, ErrBadPath
	}

	var components []string
	for _, c := range strings.Split(raw, "/") {
		if c != "" {
			components = append(components, c)
		}
	}

	return Path{components: components}, nil
}

// Append returns the path formed by adding one component to an existing path.
func Append(p Path, component string) (Path, error) {
	if component == "" || strings.ContainsAny(component, "/:") {
		return Path{}, ErrBadPath
	}

	components := make([]string, 0, len(p.components)+1)
	components = append(components, p.components...)
	components = append(components, component)

	return Path{components: components}, nil
}

// IsRoot reports whether the path is the root directory.
func (p Path) IsRoot() bool {
	return len(p.components) == 0
}

// Len returns the number of components in the path. The root has zero.
func (p Path) Len() int {
	return len(p.components)
}

// Components returns a copy of the path's components.
func (p Path) Components() []string {
	out := make([]string, len(p.components))
	copy(out, p.components)
	return out
}

// Parent returns the path with the last component removed. The root has no
// parent.
func (p Path) Parent() (Path, error) {
	if p.IsRoot() {
		return Path{}, ErrBadPath
	}

	components := make([]string, len(p.components)-1)
	copy(components, p.components[:len(p.components)-1])

	return Path{components: components}, nil
}

// Last returns the final component of the path. The root has no components.
func (p Path) Last() (string, error) {
	if p.IsRoot() {
		return "", ErrBadPath
	}
	return p.components[len(p.components)-1], nil
}

// IsSubpath reports whether other is a prefix of p. Every path is a subpath of
// itself, and the root is a subpath of every path.
func (p Path) IsSubpath(other Path) bool {
	if other.Len() > p.Len() {
		return false
	}
	for i, c := range other.components {
		if p.components[i] != c {
			return false
		}
	}
	return true
}

// String returns the canonical string form of the path. The result is a valid
// argument to New.
func (p Path) String() string {
	if p.IsRoot() {
		return "/"
	}

	var sb strings.Builder
	for _, c := range p.components {
		sb.WriteByte('/')
		sb.WriteString(c)
	}
	return sb.String()
}

// Equals reports whether two paths share all the same components.
func (p Path) Equals(other Path) bool {
	return p.String() == other.String()
}

// Compare orders paths first by component count and then lexicographically on
// the canonical string. Locking proceeds top-down from the root, so paths
// closer to the root must sort first; agents that lock several paths in
// increasing order then follow compatible dependency chains and cannot
// deadlock. The result is negative, zero, or positive in the usual way.
func (p Path) Compare(other Path) int {
	if d := p.Len() - other.Len(); d != 0 {
		return d
	}
	return strings.Compare(p.String(), other.String())
}

// Subpaths returns the root, every strict prefix of p, and p itself, in that
// order. This is the exact sequence of locks an operation on p must take.
func (p Path) Subpaths() []Path {
	out := make([]Path, 0, len(p.components)+1)
	out = append(out, Root())

	for i := range p.components {
		components := make([]string, i+1)
		copy(components, p.components[:i+1])
		out = append(out, Path{components: components})
	}

	return out
}

// List enumerates every regular file under a directory on the local
// filesystem and returns their paths relative to that directory. Storage
// servers call this once at registration to announce their contents.
func List(dir string) ([]Path, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, ErrDirNotFound
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory
	}

	var paths []Path
	err = filepath.WalkDir(dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, name)
		if err != nil {
			return err
		}

		p, err := New("/" + filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return paths, nil
}
