package policyopa

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"zkrent/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const defaultQuery = "data.zkrent.admission.result"

//go:embed policy/*.rego
var defaultPolicy embed.FS

type Engine struct {
	query      rego.PreparedEvalQuery
	policyHash string
}

// NewDefaultEngine compiles the embedded admission policy.
func NewDefaultEngine(ctx context.Context) (*Engine, error) {
	hash, err := HashFromFS(defaultPolicy, "policy")
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(defaultPolicy, "policy")
	if err != nil {
		return nil, err
	}
	opts := make([]func(*rego.Rego), 0, len(entries))
	for _, entry := range entries {
		name := "policy/" + entry.Name()
		src, err := fs.ReadFile(defaultPolicy, name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rego.Module(name, string(src)))
	}
	return newEngine(ctx, hash, opts...)
}

// NewEngineFromPath compiles the policy file or directory at path.
func NewEngineFromPath(ctx context.Context, path string) (*Engine, error) {
	hash, err := HashFromPath(path)
	if err != nil {
		return nil, err
	}
	return newEngine(ctx, hash, rego.Load([]string{path}, nil))
}

// NewEngine picks the policy at path, or the embedded default when path is empty.
func NewEngine(ctx context.Context, path string) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return NewDefaultEngine(ctx)
	}
	return NewEngineFromPath(ctx, path)
}

func newEngine(ctx context.Context, hash string, sources ...func(*rego.Rego)) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	opts := []func(*rego.Rego){
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
	}
	opts = append(opts, sources...)
	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile admission policy: %w", err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared, policyHash: hash}, nil
}

func (e *Engine) PolicyHash() string {
	return e.policyHash
}

func (e *Engine) Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error) {
	if e == nil {
		return domain.PolicyEvaluation{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.PolicyEvaluation{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PolicyEvaluation{}, errors.New("empty policy result")
	}
	result, err := decodePolicyResult(results[0].Expressions[0].Value)
	if err != nil {
		return domain.PolicyEvaluation{}, err
	}
	normalizePolicyResult(&result)
	return domain.PolicyEvaluation{PolicyHash: e.policyHash, Result: result}, nil
}

func decodePolicyResult(value any) (domain.PolicyResult, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.PolicyResult{}, err
	}
	var result domain.PolicyResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return domain.PolicyResult{}, fmt.Errorf("decode policy result: %w", err)
	}
	return result, nil
}

// normalizePolicyResult orders denies and forces allow off when any exist.
func normalizePolicyResult(result *domain.PolicyResult) {
	sort.Slice(result.Deny, func(i, j int) bool {
		if result.Deny[i].Code == result.Deny[j].Code {
			return result.Deny[i].Message < result.Deny[j].Message
		}
		return result.Deny[i].Code < result.Deny[j].Code
	})
	if len(result.Deny) > 0 {
		result.Allow = false
	}
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
