// Command check_boundaries enforces the import direction of the escrow
// module: domain <- ports <- application <- adapters, with transport DTOs
// kept free of module code. Run it from the repository root.
package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	moduleName  = "milestonepay"
	serviceRoot = "contexts/engagement-finance/milestone-escrow"
)

// layerRule lists what a layer may import, relative to the service root.
// Packages not named here are denied unless they are in the standard library
// or thirdParty is set.
type layerRule struct {
	allow      []string
	deny       []string
	thirdParty bool
}

var layerRules = map[string]layerRule{
	"domain": {
		allow: []string{"domain"},
	},
	"ports": {
		allow: []string{"domain", "@contracts"},
	},
	"application": {
		allow: []string{"application", "domain", "ports", "@contracts"},
	},
	"transport": {
		allow: []string{"transport"},
	},
	"adapters": {
		allow:      []string{"application", "domain", "ports", "transport", "@contracts"},
		deny:       []string{"adapters/"},
		thirdParty: true,
	},
}

type violation struct {
	file   string
	line   int
	imp    string
	reason string
}

func main() {
	violations, err := check(serviceRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].file != violations[j].file {
			return violations[i].file < violations[j].file
		}
		return violations[i].line < violations[j].line
	})
	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q: %s\n", v.file, v.line, v.imp, v.reason)
	}
	os.Exit(1)
}

func check(root string) ([]violation, error) {
	var violations []violation
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		layer, _, nested := strings.Cut(rel, "/")
		rule, ok := layerRules[layer]
		if !nested || !ok {
			// module.go and doc.go wire every layer together.
			return nil
		}
		found, err := checkFile(path, filepath.ToSlash(path), layer, rule)
		if err != nil {
			return err
		}
		violations = append(violations, found...)
		return nil
	})
	return violations, err
}

func checkFile(path string, display string, layer string, rule layerRule) ([]violation, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", display, err)
	}

	var violations []violation
	for _, spec := range file.Imports {
		imp := strings.Trim(spec.Path.Value, `"`)
		if reason := judge(imp, layer, rule); reason != "" {
			violations = append(violations, violation{
				file:   display,
				line:   fset.Position(spec.Pos()).Line,
				imp:    imp,
				reason: reason,
			})
		}
	}
	return violations, nil
}

func judge(imp string, layer string, rule layerRule) string {
	servicePrefix := moduleName + "/" + serviceRoot + "/"
	switch {
	case strings.HasPrefix(imp, servicePrefix):
		target := strings.TrimPrefix(imp, servicePrefix)
		for _, denied := range rule.deny {
			if strings.HasPrefix(target, denied) {
				return layer + " packages must not import each other"
			}
		}
		for _, allowed := range rule.allow {
			if target == allowed || strings.HasPrefix(target, allowed+"/") {
				return ""
			}
		}
		return layer + " must not depend on " + strings.SplitN(target, "/", 2)[0]
	case strings.HasPrefix(imp, moduleName+"/"):
		target := strings.TrimPrefix(imp, moduleName+"/")
		for _, allowed := range rule.allow {
			if strings.HasPrefix(allowed, "@") && strings.HasPrefix(target, allowed[1:]) {
				return ""
			}
		}
		return layer + " must not import runtime packages outside the module"
	case isStdlib(imp) || rule.thirdParty:
		return ""
	default:
		return layer + " must stay free of third-party packages"
	}
}

func isStdlib(imp string) bool {
	first, _, _ := strings.Cut(imp, "/")
	return !strings.Contains(first, ".")
}
