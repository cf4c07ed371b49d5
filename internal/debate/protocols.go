package debate

import (
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/pipeline"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/resilience"
)

// InvestmentRoles is the fixed speaking order of the investment debate.
var InvestmentRoles = []pipeline.Role{pipeline.RoleBull, pipeline.RoleBear}

// RiskRoles is the fixed speaking order of the risk debate.
var RiskRoles = []pipeline.Role{pipeline.RoleRisky, pipeline.RoleSafe, pipeline.RoleNeutral}

// InvestmentConfig wires the bull/bear debate judged by the research manager.
type InvestmentConfig struct {
	MaxRounds int
	Bull      Speaker
	Bear      Speaker
	Manager   JudgeFunc // must write investment_plan; may write investment_decision
	Policy    Policy
}

// NewInvestmentDebate builds the Bull -> Bear machine; after 2*MaxRounds
// turns the Manager rules.
func NewInvestmentDebate(cfg InvestmentConfig, monitor *resilience.Monitor) (*Machine, error) {
	return New(Protocol{
		Kind:      pipeline.DebateInvestment,
		Roles:     InvestmentRoles,
		JudgeRole: pipeline.RoleManager,
		MaxRounds: cfg.MaxRounds,
		Speakers: map[pipeline.Role]Speaker{
			pipeline.RoleBull: cfg.Bull,
			pipeline.RoleBear: cfg.Bear,
		},
		Judge:  cfg.Manager,
		Policy: cfg.Policy,
	}, monitor)
}

// RiskConfig wires the three-way risk debate judged by the risk judge.
type RiskConfig struct {
	MaxRounds int
	Risky     Speaker
	Safe      Speaker
	Neutral   Speaker
	Judge     JudgeFunc // must write final_trade_decision; may write risk_assessment
	Policy    Policy
}

// NewRiskDebate builds the Risky -> Safe -> Neutral machine; after
// 3*MaxRounds turns the Judge rules.
func NewRiskDebate(cfg RiskConfig, monitor *resilience.Monitor) (*Machine, error) {
	return New(Protocol{
		Kind:      pipeline.DebateRisk,
		Roles:     RiskRoles,
		JudgeRole: pipeline.RoleJudge,
		MaxRounds: cfg.MaxRounds,
		Speakers: map[pipeline.Role]Speaker{
			pipeline.RoleRisky:   cfg.Risky,
			pipeline.RoleSafe:    cfg.Safe,
			pipeline.RoleNeutral: cfg.Neutral,
		},
		Judge:  cfg.Judge,
		Policy: cfg.Policy,
	}, monitor)
}
