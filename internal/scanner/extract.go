package scanner

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Extractor supplies per-language metadata extraction. Implementations
// are registered by type tag; files whose tag has no extractor fall
// back to the file stem.
type Extractor interface {
	// ExtractComponentName returns the primary identifier declared in
	// the file (first class, function, etc.), or "" when none is found.
	ExtractComponentName(path string, content []byte) string
	// ExtractDependencies returns imported module names, best effort.
	ExtractDependencies(content []byte) []string
}

// registry maps type tags to extractors. Populated at init; callers
// may add their own via Register before scanning.
var registry = map[string]Extractor{}

// Register installs an extractor for a type tag, replacing any
// previous registration.
func Register(typeTag string, e Extractor) {
	registry[typeTag] = e
}

// componentName resolves the component name for a scanned file,
// falling back to the path stem when extraction fails or no extractor
// is registered. Undecodable content also falls back to the stem.
func componentName(typeTag, path string, content []byte, isText bool) string {
	if isText {
		if e, ok := registry[typeTag]; ok {
			if name := e.ExtractComponentName(path, content); name != "" {
				return name
			}
		}
	}
	return stem(path)
}

func stem(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		return base[:len(base)-len(ext)]
	}
	return base
}

// regexExtractor extracts the first capture of nameRe as the component
// name and all captures of depRe as dependencies.
type regexExtractor struct {
	nameRe *regexp.Regexp
	depRe  *regexp.Regexp
}

func (e *regexExtractor) ExtractComponentName(_ string, content []byte) string {
	m := e.nameRe.FindSubmatch(content)
	if len(m) < 2 {
		return ""
	}
	return string(m[1])
}

func (e *regexExtractor) ExtractDependencies(content []byte) []string {
	if e.depRe == nil {
		return nil
	}
	var deps []string
	seen := map[string]bool{}
	for _, m := range e.depRe.FindAllSubmatch(content, -1) {
		if len(m) < 2 {
			continue
		}
		dep := strings.Trim(string(m[1]), `"'`)
		if dep != "" && !seen[dep] {
			seen[dep] = true
			deps = append(deps, dep)
		}
	}
	return deps
}

func init() {
	Register("python", &regexExtractor{
		nameRe: regexp.MustCompile(`(?m)^(?:class|def)\s+(\w+)`),
		depRe:  regexp.MustCompile(`(?m)^(?:from|import)\s+(\w[\w.]*)`),
	})
	Register("go", &regexExtractor{
		nameRe: regexp.MustCompile(`(?m)^(?:func|type)\s+(?:\([^)]+\)\s+)?(\w+)`),
		depRe:  regexp.MustCompile(`(?m)^\s*(?:import\s+)?"([^"]+)"$`),
	})
	js := &regexExtractor{
		nameRe: regexp.MustCompile(`(?m)^(?:export\s+)?(?:default\s+)?(?:async\s+)?(?:function|class|const|interface)\s+(\w+)`),
		depRe:  regexp.MustCompile(`(?m)(?:from|require\()\s*['"]([^'"]+)['"]`),
	}
	Register("javascript", js)
	Register("typescript", js)
	Register("jsx_component", js)
	Register("markdown", &regexExtractor{
		nameRe: regexp.MustCompile(`(?m)^#\s+(.+)$`),
	})
	Register("sql", &regexExtractor{
		nameRe: regexp.MustCompile(`(?im)create\s+(?:table|view|index)\s+(?:if\s+not\s+exists\s+)?(\w+)`),
	})
	Register("sql_migration", registry["sql"])
	Register("shell", &regexExtractor{
		nameRe: regexp.MustCompile(`(?m)^(?:function\s+)?(\w+)\s*\(\)\s*\{`),
	})
}
