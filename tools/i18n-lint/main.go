// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-lint checks that every translation key used in the Go sources exists
// in every locale file, and lists keys of the primary locale that no code
// uses.
//
// Usage:
//
//	go run ./tools/i18n-lint [project-root]
package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Location stores the file and line number of a found key.
type Location struct {
	Filepath string
	Line     int
}

const (
	localesDir    = "internal/i18n/locales"
	primaryLocale = "en.yaml"
)

// keyCall matches translator calls such as i18n.T("dispatch.summary", ...)
// and c.t("dispatch.error.session", ...).
var keyCall = regexp.MustCompile(`\b[Tt]\("([a-z0-9_]+(?:\.[a-z0-9_]+)+)"`)

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	os.Exit(run(root, os.Stdout))
}

// run lints root and returns the process exit code.
func run(root string, out io.Writer) int {
	used, err := findUsedKeys(root)
	if err != nil {
		fmt.Fprintf(out, "error finding used keys: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "found %d translation keys in source code\n", len(used))

	locales, err := filepath.Glob(filepath.Join(root, localesDir, "*.yaml"))
	if err != nil || len(locales) == 0 {
		fmt.Fprintf(out, "no locale files under %s\n", filepath.Join(root, localesDir))
		return 1
	}
	sort.Strings(locales)

	failed := false
	for _, path := range locales {
		keys, err := loadKeysFromLocale(path)
		if err != nil {
			fmt.Fprintf(out, "error loading %s: %v\n", path, err)
			return 1
		}
		name := filepath.Base(path)
		for _, key := range sortedKeys(used) {
			if _, ok := keys[key]; !ok {
				failed = true
				loc := used[key]
				fmt.Fprintf(out, "  missing in %s: %s (%s:%d)\n", name, key, loc.Filepath, loc.Line)
			}
		}
		if name != primaryLocale {
			continue
		}
		for _, key := range sortedKeys(keys) {
			if _, ok := used[key]; !ok {
				fmt.Fprintf(out, "  orphaned in %s: %s\n", name, key)
			}
		}
	}
	if failed {
		return 1
	}
	fmt.Fprintln(out, "all used keys are translated")
	return 0
}

// findUsedKeys returns the first location of every key passed to a
// translator call in the non-test Go files under root.
func findUsedKeys(root string) (map[string]Location, error) {
	used := map[string]Location{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for i, line := range strings.Split(string(data), "\n") {
			for _, m := range keyCall.FindAllStringSubmatch(line, -1) {
				if _, seen := used[m[1]]; !seen {
					used[m[1]] = Location{Filepath: path, Line: i + 1}
				}
			}
		}
		return nil
	})
	return used, err
}

// loadKeysFromLocale reads a locale file and returns its flattened keys.
func loadKeysFromLocale(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	keys := map[string]struct{}{}
	flattenYAML("", tree, keys)
	return keys, nil
}

// flattenYAML records dotted paths to every leaf. Flat files with dotted
// keys and nested files yield the same keys.
func flattenYAML(prefix string, node any, keys map[string]struct{}) {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			flattenYAML(p, child, keys)
		}
	default:
		if prefix != "" {
			keys[prefix] = struct{}{}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
