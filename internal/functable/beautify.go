package functable

import (
	"path/filepath"
	"sort"
	"strings"
)

// Beautifier shortens source paths for display by stripping known roots.
type Beautifier struct {
	prefixes []string
}

// NewBeautifier creates a beautifier stripping the given roots. The longest
// matching root wins.
func NewBeautifier(prefixes ...string) *Beautifier {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		p = filepath.Clean(p)
		if !strings.HasSuffix(p, string(filepath.Separator)) {
			p += string(filepath.Separator)
		}
		cleaned = append(cleaned, p)
	}
	sort.Slice(cleaned, func(i, j int) bool { return len(cleaned[i]) > len(cleaned[j]) })
	return &Beautifier{prefixes: cleaned}
}

// Beautify normalizes path for display. Pseudo paths such as "<builtin>" are
// returned unchanged.
func (b *Beautifier) Beautify(path string) string {
	if path == "" || strings.HasPrefix(path, "<") {
		return path
	}
	path = filepath.Clean(path)
	if b == nil {
		return path
	}
	for _, p := range b.prefixes {
		if strings.HasPrefix(path, p) {
			return strings.TrimPrefix(path, p)
		}
	}
	return path
}

// BeautifyLocation formats loc as file:line with the file beautified.
func (b *Beautifier) BeautifyLocation(loc Location) string {
	return Location{File: b.Beautify(loc.File), Line: loc.Line}.String()
}
