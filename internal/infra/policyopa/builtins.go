package policyopa

import "github.com/open-policy-agent/opa/ast"

// allowedBuiltins is the whole builtin surface admission policies may use.
// Anything with I/O or nondeterminism (http.send, time.now_ns, rand) is absent.
var allowedBuiltins = map[string]struct{}{
	"abs":        {},
	"assign":     {},
	"concat":     {},
	"contains":   {},
	"count":      {},
	"div":        {},
	"endswith":   {},
	"eq":         {},
	"equal":      {},
	"format_int": {},
	"gt":         {},
	"gte":        {},
	"lower":      {},
	"lt":         {},
	"lte":        {},
	"max":        {},
	"min":        {},
	"minus":      {},
	"mul":        {},
	"neq":        {},
	"object.get": {},
	"plus":       {},
	"sort":       {},
	"sprintf":    {},
	"startswith": {},
	"sum":        {},
	"trim":       {},
	"upper":      {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(allowedBuiltins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
