package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/internal/strategy"
)

const goodSelector = `package strategy

import (
	"sort"
	"time"

	"quant/contracts"
)

type TopGainers struct {
	topN int
}

func New(p contracts.Params) contracts.StockSelector {
	return &TopGainers{topN: p.Int("top_n", 10)}
}

func (s *TopGainers) Name() string { return "top_gainers" }

func (s *TopGainers) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	type scored struct {
		code string
		ret  float64
	}
	var all []scored
	for _, code := range data.Symbols() {
		bars := data.History(code, date, 2)
		if len(bars) < 2 || bars[0].Close == 0 {
			continue
		}
		all = append(all, scored{code, bars[1].Close/bars[0].Close - 1})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ret > all[j].ret })
	var out []string
	for i := 0; i < len(all) && i < s.topN; i++ {
		out = append(out, all[i].code)
	}
	return out, nil
}
`

func TestValidateGoodSelector(t *testing.T) {
	res := Validate(goodSelector, "TopGainers", contracts.RoleSelector)
	require.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Empty(t, res.Errors)
	assert.Equal(t, strategy.RiskSafe, res.RiskLevel)
}

func TestValidateSyntaxError(t *testing.T) {
	res := Validate("package strategy\nfunc (", "X", contracts.RoleSelector)
	require.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "syntax error")
	assert.Equal(t, strategy.RiskHigh, res.RiskLevel)
}

func TestValidateWrongPackage(t *testing.T) {
	res := Validate("package main\nfunc main() {}", "X", contracts.RoleSelector)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], `package must be "strategy"`)
}

func TestValidateDeniedCapabilities(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{
			name: "os import",
			code: "package strategy\n\nimport \"os\"\n\nvar _ = os.Getenv",
			want: "not allowed",
		},
		{
			name: "goroutine",
			code: "package strategy\n\nfunc run() { go func() {}() }",
			want: "goroutine",
		},
		{
			name: "channel type",
			code: "package strategy\n\nvar ch chan int",
			want: "channels are not allowed",
		},
		{
			name: "select statement",
			code: "package strategy\n\nfunc run() { select {} }",
			want: "select statements",
		},
		{
			name: "unsafe identifier",
			code: "package strategy\n\nvar unsafe int",
			want: "denied",
		},
		{
			name: "import alias",
			code: "package strategy\n\nimport m \"math\"\n\nvar _ = m.Pi",
			want: "aliases",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.code, "X", contracts.RoleSelector)
			require.False(t, res.Valid)
			found := false
			for _, e := range res.Errors {
				if strings.Contains(e, tt.want) {
					found = true
				}
			}
			assert.True(t, found, "expected an error containing %q, got %v", tt.want, res.Errors)
		})
	}
}

func TestValidateMissingMethod(t *testing.T) {
	code := `package strategy

import (
	"time"

	"quant/contracts"
)

type Half struct{}

func New(p contracts.Params) contracts.StockSelector { return &Half{} }

func (s *Half) Name() string { return "half" }

var _ = time.Time{}
`
	res := Validate(code, "Half", contracts.RoleSelector)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "missing required method Select")
}

func TestValidateMissingConstructor(t *testing.T) {
	code := `package strategy

import (
	"time"

	"quant/contracts"
)

type NoCtor struct{}

func (s *NoCtor) Name() string { return "x" }

func (s *NoCtor) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	return nil, nil
}
`
	res := Validate(code, "NoCtor", contracts.RoleSelector)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "constructor func New")
}

func TestValidateConstructorWrongReturn(t *testing.T) {
	code := `package strategy

import (
	"time"

	"quant/contracts"
)

type Wrong struct{}

func New(p contracts.Params) *Wrong { return &Wrong{} }

func (s *Wrong) Name() string { return "x" }

func (s *Wrong) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	return nil, nil
}
`
	res := Validate(code, "Wrong", contracts.RoleSelector)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "must return contracts.StockSelector")
}

func TestValidateClassNotFound(t *testing.T) {
	res := Validate("package strategy\n\ntype Other struct{}", "Missing", contracts.RoleSelector)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], `class "Missing" not found`)
}

func TestValidateWarningsRaiseRisk(t *testing.T) {
	code := `package strategy

import (
	"time"

	"quant/contracts"
)

type Spin struct{}

func New(p contracts.Params) contracts.StockSelector { return &Spin{} }

func (s *Spin) Name() string { return "spin" }

func (s *Spin) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	for {
	}
}
`
	res := Validate(code, "Spin", contracts.RoleSelector)
	require.True(t, res.Valid)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, strategy.RiskLow, res.RiskLevel)
}

func TestValidateExitRoleMethods(t *testing.T) {
	code := `package strategy

import (
	"time"

	"quant/contracts"
)

type HardStop struct {
	pct float64
}

func New(p contracts.Params) contracts.ExitStrategy {
	return &HardStop{pct: p.Float("stop_pct", 0.07)}
}

func (s *HardStop) Name() string                   { return "hard_stop" }
func (s *HardStop) Priority() int                  { return contracts.PriorityStopLoss }
func (s *HardStop) Reason() contracts.ExitReason   { return contracts.ExitReasonRiskControl }
func (s *HardStop) Trigger() contracts.ExitTrigger { return contracts.TriggerStopLoss }

func (s *HardStop) ExitSignals(positions []contracts.PositionSnapshot, data *contracts.MarketData, date time.Time) ([]string, error) {
	var out []string
	for _, pos := range positions {
		px, ok := data.Close(pos.Code, date)
		if !ok {
			continue
		}
		if px <= pos.EntryPrice*(1-s.pct) {
			out = append(out, pos.Code)
		}
	}
	return out, nil
}
`
	res := Validate(code, "HardStop", contracts.RoleExit)
	require.True(t, res.Valid, "errors: %v", res.Errors)
}

func TestResultAsError(t *testing.T) {
	res := Validate("package strategy\nvar ch chan int", "X", contracts.RoleSelector)
	err := res.AsError("bad_one", contracts.ValidationCapability)

	var verr *contracts.StrategyValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, contracts.ValidationCapability, verr.Kind)
	assert.Equal(t, "bad_one", verr.Strategy)

	good := Validate(goodSelector, "TopGainers", contracts.RoleSelector)
	assert.NoError(t, good.AsError("top_gainers", contracts.ValidationCapability))
}
