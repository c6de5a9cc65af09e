package sandbox

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/internal/strategy"
)

// =============================================================================
// Code Validator
// Pure static analysis: syntax parse, capability scan over the syntax
// tree, structural role-contract check. No strategy code is ever executed
// here.
// =============================================================================

// allowedImports is the full import surface reachable from strategy code.
// The executor's symbol table enforces the same list at runtime, so a
// bypassed validator still cannot reach the filesystem or network.
var allowedImports = map[string]bool{
	"math":           true,
	"sort":           true,
	"time":           true,
	"quant/contracts": true,
}

// deniedIdents are identifiers that must never appear in strategy code,
// regardless of how they would resolve.
var deniedIdents = map[string]string{
	"unsafe":  "unsafe memory access",
	"syscall": "system calls",
	"reflect": "reflection",
	"os":      "process and filesystem access",
	"exec":    "process spawning",
	"net":     "network access",
	"http":    "network access",
	"plugin":  "dynamic code loading",
	"eval":    "dynamic evaluation",
}

// Result is the validator verdict for one strategy version.
type Result struct {
	Valid     bool               `json:"valid"`
	Errors    []string           `json:"errors,omitempty"`
	Warnings  []string           `json:"warnings,omitempty"`
	RiskLevel strategy.RiskLevel `json:"risk_level"`
}

// Validate runs syntax, capability and structural checks over strategy
// source. It never mutates anything; persisting the verdict is the
// caller's job.
func Validate(code, className string, role contracts.Role) *Result {
	res := &Result{RiskLevel: strategy.RiskHigh}

	// (a) Syntax
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, className+".go", code, 0)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("syntax error: %v", err))
		return res
	}
	if file.Name.Name != "strategy" {
		res.Errors = append(res.Errors, fmt.Sprintf("package must be %q, got %q", "strategy", file.Name.Name))
		return res
	}

	// (b) Capability scan
	scanCapabilities(file, res)
	if len(res.Errors) > 0 {
		return res
	}

	// (c) Structural check
	checkStructure(file, className, role, res)
	if len(res.Errors) > 0 {
		return res
	}

	res.Valid = true
	res.RiskLevel = riskFromWarnings(len(res.Warnings))
	return res
}

// AsError converts a failed Result into the validation error type, nil
// for a passing one.
func (r *Result) AsError(name string, kind contracts.ValidationKind) error {
	if r.Valid {
		return nil
	}
	return &contracts.StrategyValidationError{
		Kind:     kind,
		Strategy: name,
		Problems: r.Errors,
	}
}

func scanCapabilities(file *ast.File, res *Result) {
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("malformed import %s", imp.Path.Value))
			continue
		}
		if imp.Name != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("import aliases are not allowed: %s %q", imp.Name.Name, path))
			continue
		}
		if !allowedImports[path] {
			res.Errors = append(res.Errors, fmt.Sprintf("import %q is not allowed", path))
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.GoStmt:
			res.Errors = append(res.Errors, "goroutine launch is not allowed")
		case *ast.SelectStmt:
			res.Errors = append(res.Errors, "select statements are not allowed")
		case *ast.ChanType:
			res.Errors = append(res.Errors, "channels are not allowed")
		case *ast.SendStmt:
			res.Errors = append(res.Errors, "channel sends are not allowed")
		case *ast.Ident:
			if reason, denied := deniedIdents[node.Name]; denied {
				res.Errors = append(res.Errors, fmt.Sprintf("identifier %q is denied (%s)", node.Name, reason))
			}
		case *ast.CallExpr:
			if id, ok := node.Fun.(*ast.Ident); ok && id.Name == "panic" {
				res.Warnings = append(res.Warnings, "panic aborts the strategy call")
			}
		case *ast.ForStmt:
			if node.Cond == nil {
				res.Warnings = append(res.Warnings, "unbounded loop; the call is subject to the wall-clock limit")
			}
		}
		return true
	})
}

func requiredMethods(role contracts.Role) []string {
	switch role {
	case contracts.RoleSelector:
		return []string{"Name", "Select"}
	case contracts.RoleEntry:
		return []string{"Name", "EntrySignals"}
	case contracts.RoleExit:
		return []string{"Name", "Priority", "Reason", "Trigger", "ExitSignals"}
	}
	return nil
}

// roleInterface is the contracts interface a constructor must return.
func roleInterface(role contracts.Role) string {
	switch role {
	case contracts.RoleSelector:
		return "StockSelector"
	case contracts.RoleEntry:
		return "EntryStrategy"
	case contracts.RoleExit:
		return "ExitStrategy"
	}
	return ""
}

func checkStructure(file *ast.File, className string, role contracts.Role, res *Result) {
	iface := roleInterface(role)
	if iface == "" {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown role %q", role))
		return
	}

	// The declared class must exist as a struct type.
	classFound := false
	methods := make(map[string]bool)
	var ctor *ast.FuncDecl

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || ts.Name.Name != className {
					continue
				}
				if _, ok := ts.Type.(*ast.StructType); ok {
					classFound = true
				}
			}
		case *ast.FuncDecl:
			if d.Recv == nil {
				if d.Name.Name == "New" {
					ctor = d
				}
				continue
			}
			if receiverType(d) == className {
				methods[d.Name.Name] = true
			}
		}
	}

	if !classFound {
		res.Errors = append(res.Errors, fmt.Sprintf("class %q not found (expected a struct type)", className))
		return
	}

	for _, m := range requiredMethods(role) {
		if !methods[m] {
			res.Errors = append(res.Errors, fmt.Sprintf("class %q is missing required method %s for role %s", className, m, role))
		}
	}

	if ctor == nil {
		res.Errors = append(res.Errors, "constructor func New(contracts.Params) is missing")
		return
	}
	if !ctorReturnsInterface(ctor, iface) {
		res.Errors = append(res.Errors,
			fmt.Sprintf("constructor New must return contracts.%s", iface))
	}
}

func receiverType(d *ast.FuncDecl) string {
	if len(d.Recv.List) != 1 {
		return ""
	}
	switch t := d.Recv.List[0].Type.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		if id, ok := t.X.(*ast.Ident); ok {
			return id.Name
		}
	}
	return ""
}

func ctorReturnsInterface(ctor *ast.FuncDecl, iface string) bool {
	if ctor.Type.Results == nil || len(ctor.Type.Results.List) != 1 {
		return false
	}
	sel, ok := ctor.Type.Results.List[0].Type.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	return ok && pkg.Name == "contracts" && sel.Sel.Name == iface
}

func riskFromWarnings(n int) strategy.RiskLevel {
	switch {
	case n == 0:
		return strategy.RiskSafe
	case n <= 2:
		return strategy.RiskLow
	default:
		return strategy.RiskMedium
	}
}
