package expression

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"gatekeeper/internal/compliance"
	"gatekeeper/pkg/domain"
	"gatekeeper/pkg/requestcontext"
)

const (
	costLimit          = 10000
	interruptFrequency = 100
)

// Variables available to an expression.
const (
	VarAsset            = "asset"
	VarKind             = "kind"
	VarFrom             = "from"
	VarTo               = "to"
	VarAmount           = "amount"
	VarFromJurisdiction = "from_jurisdiction"
	VarToJurisdiction   = "to_jurisdiction"
	VarNow              = "now"
)

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable(VarAsset, cel.StringType),
		cel.Variable(VarKind, cel.StringType),
		cel.Variable(VarFrom, cel.StringType),
		cel.Variable(VarTo, cel.StringType),
		cel.Variable(VarAmount, cel.IntType),
		cel.Variable(VarFromJurisdiction, cel.StringType),
		cel.Variable(VarToJurisdiction, cel.StringType),
		cel.Variable(VarNow, cel.TimestampType),
	)
}

// programs compiles expressions once and caches the programs by source text.
type programs struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

func (p *programs) get(expr string) (cel.Program, error) {
	p.mu.RLock()
	prg, ok := p.cache[expr]
	p.mu.RUnlock()
	if ok {
		return prg, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prg, ok := p.cache[expr]; ok {
		return prg, nil
	}
	prg, err := p.compile(expr)
	if err != nil {
		return nil, err
	}
	p.cache[expr] = prg
	return prg, nil
}

func (p *programs) compile(expr string) (cel.Program, error) {
	ast, issues := p.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", out)
	}
	prg, err := p.env.Program(ast,
		cel.CostLimit(costLimit),
		cel.InterruptCheckFrequency(interruptFrequency),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	return prg, nil
}

// activation builds the variables for tc. Unknown jurisdictions are empty
// strings.
func (m *Module) activation(ctx context.Context, tc compliance.TransferContext) (map[string]any, error) {
	vars := map[string]any{
		VarAsset:            tc.Asset.String(),
		VarKind:             string(tc.Kind),
		VarFrom:             tc.From.String(),
		VarTo:               tc.To.String(),
		VarAmount:           int64(tc.Amount),
		VarFromJurisdiction: "",
		VarToJurisdiction:   "",
		VarNow:              requestcontext.Now(ctx),
	}
	for _, party := range []struct {
		addr domain.Address
		name string
	}{{tc.From, VarFromJurisdiction}, {tc.To, VarToJurisdiction}} {
		if party.addr.IsNil() || m.jurisdictions == nil {
			continue
		}
		code, ok, err := m.jurisdictions.Resolve(ctx, party.addr)
		if err != nil {
			return nil, err
		}
		if ok {
			vars[party.name] = code.String()
		}
	}
	return vars, nil
}
