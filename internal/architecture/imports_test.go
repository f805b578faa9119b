package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type importRef struct {
	file string
	imp  string
}

// internalImports parses every Go file under internal/ and returns the
// module-local imports, keyed by file path relative to the module root.
func internalImports(t *testing.T) (string, []importRef) {
	t.Helper()

	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}

	fset := token.NewFileSet()
	var refs []importRef
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "testdata":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil || !strings.HasPrefix(imp, modulePath+"/") {
				continue
			}
			refs = append(refs, importRef{
				file: filepath.ToSlash(rel),
				imp:  strings.TrimPrefix(imp, modulePath+"/"),
			})
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
	return modulePath, refs
}

func TestImportBoundaries(t *testing.T) {
	_, refs := internalImports(t)

	var violations []string
	for _, r := range refs {
		layer := layerFor(r.file)
		for _, bad := range disallowedImports(layer) {
			if r.imp == bad || strings.HasPrefix(r.imp, bad+"/") {
				violations = append(violations, fmt.Sprintf("- %s imports %q (layer %s may not import %s)", r.file, r.imp, layer, bad))
				break
			}
		}
	}
	if len(violations) > 0 {
		t.Fatalf("import boundary violations:\n%s", strings.Join(violations, "\n"))
	}
}

// Provider backends are chosen by configuration, so only the router may
// construct them.
func TestBackendsOnlyImportedByRouter(t *testing.T) {
	_, refs := internalImports(t)

	backends := []string{"internal/engine/gemini", "internal/engine/genai", "internal/engine/openai"}
	var violations []string
	for _, r := range refs {
		if strings.HasPrefix(r.file, "internal/router/") || strings.HasPrefix(r.file, "internal/engine/") {
			continue
		}
		for _, b := range backends {
			if r.imp == b {
				violations = append(violations, fmt.Sprintf("- %s imports %q", r.file, r.imp))
			}
		}
	}
	if len(violations) > 0 {
		t.Fatalf("backend imports outside internal/router:\n%s", strings.Join(violations, "\n"))
	}
}

func layerFor(rel string) string {
	switch {
	case strings.HasPrefix(rel, "internal/platform/"):
		return "platform"
	case strings.HasPrefix(rel, "internal/schema/"),
		strings.HasPrefix(rel, "internal/audio/"),
		strings.HasPrefix(rel, "internal/ratelimit/"):
		return "foundation"
	case strings.HasPrefix(rel, "internal/prompt/"),
		strings.HasPrefix(rel, "internal/engine/"),
		strings.HasPrefix(rel, "internal/router/"):
		return "model"
	case strings.HasPrefix(rel, "internal/flow/"),
		strings.HasPrefix(rel, "internal/flows/"):
		return "flow"
	case strings.HasPrefix(rel, "internal/store/"),
		strings.HasPrefix(rel, "internal/observability/"):
		return "support"
	case strings.HasPrefix(rel, "internal/httpapi/"):
		return "transport"
	default:
		return ""
	}
}

func disallowedImports(layer string) []string {
	outer := []string{"internal/app", "internal/httpapi"}
	switch layer {
	case "platform":
		return append(outer,
			"internal/schema", "internal/audio", "internal/prompt", "internal/engine",
			"internal/router", "internal/flow", "internal/flows", "internal/store",
			"internal/ratelimit", "internal/observability", "internal/config")
	case "foundation":
		return append(outer,
			"internal/prompt", "internal/engine", "internal/router",
			"internal/flow", "internal/flows", "internal/store")
	case "model":
		return append(outer, "internal/flow", "internal/flows", "internal/store", "internal/ratelimit")
	case "flow":
		return append(outer, "internal/store", "internal/ratelimit")
	case "support":
		return append(outer, "internal/flows")
	case "transport":
		return []string{"internal/app"}
	default:
		return nil
	}
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
