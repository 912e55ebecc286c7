package scanner

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule classifies a file by its relative path. The first rule whose
// pattern matches (and whose predicate, if any, accepts) wins. Rules
// are data: adding a language means adding a row, not a branch.
type Rule struct {
	Pattern *regexp.Regexp
	Type    string
	Match   func(relPath string, content []byte) bool
}

// DefaultRules is the ordered classification table. Files matching no
// rule are silently skipped by the scanner.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: regexp.MustCompile(`(^|/)migrations?/.*\.sql$`), Type: "sql_migration"},
		{Pattern: regexp.MustCompile(`\.sql$`), Type: "sql"},
		{Pattern: regexp.MustCompile(`\.py$`), Type: "python"},
		{Pattern: regexp.MustCompile(`\.go$`), Type: "go"},
		{Pattern: regexp.MustCompile(`\.[jt]sx$`), Type: "jsx_component"},
		{Pattern: regexp.MustCompile(`\.ts$`), Type: "typescript"},
		{Pattern: regexp.MustCompile(`\.[cm]?js$`), Type: "javascript"},
		{Pattern: regexp.MustCompile(`\.(md|markdown)$`), Type: "markdown"},
		{Pattern: regexp.MustCompile(`\.json$`), Type: "json_config"},
		{Pattern: regexp.MustCompile(`\.ya?ml$`), Type: "yaml_config"},
		{Pattern: regexp.MustCompile(`\.toml$`), Type: "toml_config"},
		{Pattern: regexp.MustCompile(`\.(sh|bash|zsh)$`), Type: "shell"},
		{Pattern: regexp.MustCompile(`\.css$`), Type: "css"},
		{Pattern: regexp.MustCompile(`\.html?$`), Type: "html"},
		{Pattern: regexp.MustCompile(`\.(txt|text)$`), Type: "text"},
		{Pattern: regexp.MustCompile(`(^|/)(Makefile|Dockerfile|LICENSE|README)$`), Type: "text"},
	}
}

// DefaultIgnoreDirs are directory names pruned during the walk: VCS
// metadata, build outputs and dependency caches.
func DefaultIgnoreDirs() map[string]bool {
	return map[string]bool{
		".git":         true,
		".hg":          true,
		".svn":         true,
		".templedb":    true,
		"node_modules": true,
		"__pycache__":  true,
		".venv":        true,
		"venv":         true,
		".tox":         true,
		"dist":         true,
		"build":        true,
		"target":       true,
		".idea":        true,
		".vscode":      true,
		".cache":       true,
		"vendor":       true,
	}
}

// ruleOverride is one row of the optional YAML rule file.
type ruleOverride struct {
	Pattern string `yaml:"pattern"`
	Type    string `yaml:"type"`
}

// LoadRuleOverrides reads a YAML rule file and returns its rules,
// which callers typically prepend to DefaultRules so overrides win.
//
// Format:
//
//	rules:
//	  - pattern: '\.proto$'
//	    type: protobuf
func LoadRuleOverrides(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var doc struct {
		Rules []ruleOverride `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for i, o := range doc.Rules {
		if o.Pattern == "" || o.Type == "" {
			return nil, fmt.Errorf("rule %d in %s needs both pattern and type", i, path)
		}
		re, err := regexp.Compile(o.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d pattern %q: %w", i, o.Pattern, err)
		}
		rules = append(rules, Rule{Pattern: re, Type: o.Type})
	}
	return rules, nil
}

// classify returns the type tag of the first matching rule, or "" when
// no rule matches.
func classify(rules []Rule, relPath string, content []byte) string {
	for _, r := range rules {
		if !r.Pattern.MatchString(relPath) {
			continue
		}
		if r.Match != nil && !r.Match(relPath, content) {
			continue
		}
		return r.Type
	}
	return ""
}
