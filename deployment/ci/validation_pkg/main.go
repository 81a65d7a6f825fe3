// validation_pkg fails when a package name differs from its folder or when two
// folders share a name, which would make mock package names collide.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var skipDirs = map[string]bool{
	"vendor":     true,
	"mocks":      true,
	"tmp":        true,
	"deployment": true,
	"example":    true,
}

// skip also covers hidden folders and the underscore-prefixed ones the go
// tool ignores.
func skip(name string) bool {
	return skipDirs[name] || (name != "." && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")))
}

func main() {
	folders := make(map[string][]string)
	var problems []string

	err := filepath.WalkDir(".", func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if skip(d.Name()) {
				return filepath.SkipDir
			}
			if path != "." {
				folders[d.Name()] = append(folders[d.Name()], path)
			}
			return nil
		}

		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		pkg := extractPackage(string(content))
		folder := filepath.Base(filepath.Dir(path))
		if pkg == "main" || folder == "." {
			return nil
		}
		if pkg != folder {
			problems = append(problems, fmt.Sprintf("package %q does not match folder %q: %s", pkg, folder, path))
		}
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	for name, paths := range folders {
		if len(paths) > 1 {
			problems = append(problems, fmt.Sprintf("folder %q is duplicated: %s", name, strings.Join(paths, ", ")))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		for _, p := range problems {
			fmt.Println("ERROR:", p)
		}
		os.Exit(1)
	}

	fmt.Println("no problems found")
}

func extractPackage(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "package "); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}
