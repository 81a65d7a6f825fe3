// gen_mocks runs mockgen for every source file declaring an interface and
// writes the result to mocks/mock<pkg>/mock_<file>.go.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	destDir    = "./mocks"
	numWorkers = 5
)

var (
	skipDirs = map[string]bool{
		"vendor":     true,
		"mocks":      true,
		"tmp":        true,
		"deployment": true,
		"example":    true,
	}
	interfaceDecl = regexp.MustCompile(`(?m)^type\s+[A-Z]\w*\s+interface\s*\{`)
)

type source struct {
	Path     string
	Pkg      string
	FileName string
}

func main() {
	start := time.Now()

	files := make(chan source, 100)
	var workers sync.WaitGroup

	for range numWorkers {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for f := range files {
				generate(f)
			}
		}()
	}

	err := filepath.WalkDir(".", func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if skipDirs[name] || (path != "." && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_"))) {
				return filepath.SkipDir
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
		if pkg := extractPackage(string(content)); pkg != "main" && interfaceDecl.Match(content) {
			files <- source{
				Path:     path,
				Pkg:      pkg,
				FileName: strings.TrimSuffix(filepath.Base(path), ".go"),
			}
		}
		return nil
	})
	close(files)
	workers.Wait()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("\nTotal execution time: %s\n", time.Since(start))
}

func generate(f source) {
	pkg := "mock" + f.Pkg
	dest := filepath.Join(destDir, pkg, "mock_"+f.FileName+".go")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		fmt.Printf("Error creating %s: %v\n", filepath.Dir(dest), err)
		return
	}

	cmd := exec.Command("go", "run", "go.uber.org/mock/mockgen@latest",
		"-source="+f.Path,
		"-destination="+dest,
		"-package="+pkg,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		fmt.Printf("Error generating mock for %s: %v\n%s", f.Path, err, out)
		return
	}
	fmt.Printf("Mock generated: %s\n", dest)
}

func extractPackage(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "package "); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}
