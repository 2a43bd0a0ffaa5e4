package architecture_test

import (
	"bytes"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
)

// boundary denies imports from one directory prefix into others. Paths are
// relative to the module root.
type boundary struct {
	from      string
	deny      []string
	skipTests bool
}

var boundaries = []boundary{
	{from: "internal/domain/", deny: []string{"internal/data/", "internal/modules/", "internal/services", "internal/http", "internal/app", "internal/platform/", "internal/realtime/"}},
	{from: "internal/platform/", deny: []string{"internal/data/", "internal/modules/", "internal/services", "internal/http", "internal/app"}},
	{from: "internal/realtime/", deny: []string{"internal/data/", "internal/modules/", "internal/services", "internal/http", "internal/app"}},
	{from: "internal/data/", deny: []string{"internal/modules/", "internal/services", "internal/http", "internal/app"}},
	{from: "internal/modules/", deny: []string{"internal/services", "internal/http", "internal/app"}},
	{from: "internal/services/", deny: []string{"internal/http", "internal/app"}},
	// Handlers reach storage and vendors only through internal/services.
	{from: "internal/http/handlers/", skipTests: true, deny: []string{
		"internal/data/", "internal/platform/gcp", "internal/platform/openai",
		"internal/platform/unsplash", "internal/platform/redisclient",
	}},
}

func TestImportBoundaries(t *testing.T) {
	root, module := moduleRoot(t)
	files := importsByFile(t, root, module)

	var violations []string
	for _, rel := range sortedFiles(files) {
		for _, b := range boundaries {
			if !strings.HasPrefix(rel, b.from) || (b.skipTests && strings.HasSuffix(rel, "_test.go")) {
				continue
			}
			for _, imp := range files[rel] {
				for _, deny := range b.deny {
					if strings.HasPrefix(imp, deny) {
						violations = append(violations, fmt.Sprintf("- %s imports %s (%s may not import %s)", rel, imp, b.from, deny))
					}
				}
			}
		}
	}
	if len(violations) > 0 {
		t.Fatalf("import boundary violations:\n%s", strings.Join(violations, "\n"))
	}
}

// importsByFile maps each Go file under internal/ to its in-module imports, with the
// module path stripped.
func importsByFile(t *testing.T, root, module string) map[string][]string {
	t.Helper()
	out := map[string][]string{}
	fset := token.NewFileSet()
	err := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, spec := range f.Imports {
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil || !strings.HasPrefix(imp, module+"/") {
				continue
			}
			out[rel] = append(out[rel], strings.TrimPrefix(imp, module+"/"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk internal/: %v", err)
	}
	return out
}

func sortedFiles(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func moduleRoot(t *testing.T) (dir, module string) {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		raw, err := os.ReadFile(filepath.Join(dir, "go.mod"))
		if err == nil {
			for _, line := range bytes.Split(raw, []byte("\n")) {
				if rest, ok := bytes.CutPrefix(bytes.TrimSpace(line), []byte("module ")); ok {
					return dir, strings.TrimSpace(string(rest))
				}
			}
			t.Fatalf("no module line in %s/go.mod", dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("go.mod not found")
		}
		dir = parent
	}
}
