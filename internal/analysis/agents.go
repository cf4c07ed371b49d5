package analysis

// #region imports
import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/debate"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/pipeline"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/provider"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/resilience"
)

// #endregion

// #region caller
// Caller is the subset of provider.Router the agents need.
type Caller interface {
	Call(ctx context.Context, capability provider.Capability, req provider.Request) (provider.Response, error)
}

// AnalystCapabilities maps each analyst to the capability it draws data from.
var AnalystCapabilities = map[pipeline.Role]provider.Capability{
	pipeline.RoleMarket:       provider.CapabilityQuote,
	pipeline.RoleNews:         provider.CapabilityNews,
	pipeline.RoleFundamentals: provider.CapabilityFundamentals,
	pipeline.RoleSentiment:    provider.CapabilitySentiment,
	pipeline.RolePolicy:       provider.CapabilityNews,
	pipeline.RoleFundFlow:     provider.CapabilityQuote,
	pipeline.RoleScout:        provider.CapabilityCompletion,
}

// #endregion caller

// #region provider-agents
// ProviderAgents builds every role on top of the provider router: analysts
// call their data capability, debaters and judges call llm_completion.
// A capability with no live provider fails the stage, which then degrades.
func ProviderAgents(c Caller) Agents {
	analysts := make(map[pipeline.Role]resilience.StageFunc, len(AnalystCapabilities))
	for role, capability := range AnalystCapabilities {
		analysts[role] = ProviderAnalyst(c, role, capability)
	}
	return Agents{
		Analysts: analysts,
		Bull:     ModelSpeaker(c),
		Bear:     ModelSpeaker(c),
		Manager:  ModelManager(c),
		Trader:   ModelTrader(c),
		Risky:    ModelSpeaker(c),
		Safe:     ModelSpeaker(c),
		Neutral:  ModelSpeaker(c),
		Judge:    ModelRiskJudge(c),
	}
}

// ProviderAnalyst fetches data for the ticker and renders it as the
// analyst's report.
func ProviderAnalyst(c Caller, role pipeline.Role, capability provider.Capability) resilience.StageFunc {
	field, _ := pipeline.OutputField(role)
	return func(ctx context.Context, sc *pipeline.SharedContext) (pipeline.Update, error) {
		resp, err := c.Call(ctx, capability, provider.Request{Params: map[string]any{
			"role":       string(role),
			"ticker":     sc.Ticker(),
			"trade_date": sc.TradeDate(),
		}})
		if err != nil {
			return nil, err
		}
		report := renderData(resp.Data)
		if report == "" {
			return nil, fmt.Errorf("%s: empty response from %s", role, resp.ProviderID)
		}
		return pipeline.Update{field: report}, nil
	}
}

// ModelSpeaker produces debate arguments through llm_completion.
func ModelSpeaker(c Caller) debate.Speaker {
	return func(ctx context.Context, in debate.TurnInput) (string, error) {
		prompt := fmt.Sprintf("You are the %s analyst in round %d on %s (%s).\n\n%s\n\nDebate so far:\n%s",
			in.Role, in.Round, in.Context.Ticker(), in.Context.TradeDate(),
			reportDigest(in.Context), in.State.CombinedHistory)
		return complete(ctx, c, in.Role, prompt)
	}
}

// ModelManager rules on the investment debate.
func ModelManager(c Caller) debate.JudgeFunc {
	return func(ctx context.Context, in debate.JudgeInput) (pipeline.Update, error) {
		resp, err := c.Call(ctx, provider.CapabilityCompletion, provider.Request{Params: map[string]any{
			"role":   string(pipeline.RoleManager),
			"prompt": "Summarize the bull/bear debate into an investment plan.\n\n" + in.State.CombinedHistory,
		}})
		if err != nil {
			return nil, err
		}
		plan, _ := resp.Data["text"].(string)
		u := pipeline.Update{pipeline.FieldInvestmentPlan: plan}
		if d, ok := resp.Data["decision"].(string); ok && d != "" {
			u[pipeline.FieldInvestmentDecision] = d
		}
		return u, nil
	}
}

// ModelTrader turns the investment plan into a trader plan.
func ModelTrader(c Caller) resilience.StageFunc {
	return func(ctx context.Context, sc *pipeline.SharedContext) (pipeline.Update, error) {
		plan, _ := sc.Report(pipeline.FieldInvestmentPlan)
		text, err := complete(ctx, c, pipeline.RoleTrader,
			fmt.Sprintf("Propose a concrete trade for %s given this plan:\n%s", sc.Ticker(), plan))
		if err != nil {
			return nil, err
		}
		return pipeline.Update{pipeline.FieldTraderPlan: text}, nil
	}
}

// ModelRiskJudge produces the final trade decision and, when the model
// returns one, an explicit risk assessment.
func ModelRiskJudge(c Caller) debate.JudgeFunc {
	return func(ctx context.Context, in debate.JudgeInput) (pipeline.Update, error) {
		trader, _ := in.Context.Report(pipeline.FieldTraderPlan)
		resp, err := c.Call(ctx, provider.CapabilityCompletion, provider.Request{Params: map[string]any{
			"role":   string(pipeline.RoleJudge),
			"prompt": fmt.Sprintf("Trader plan:\n%s\n\nRisk debate:\n%s\n\nGive the final decision.", trader, in.State.CombinedHistory),
		}})
		if err != nil {
			return nil, err
		}
		decision, _ := resp.Data["text"].(string)
		u := pipeline.Update{pipeline.FieldFinalDecision: decision}
		if conf, ok := resp.Data["confidence"].(float64); ok && decision != "" {
			score, _ := resp.Data["score"].(float64)
			verdict, _ := resp.Data["verdict"].(string)
			u[pipeline.FieldRiskAssessment] = pipeline.RiskAssessment{Score: score, Verdict: verdict, Confidence: conf}
		}
		return u, nil
	}
}

// #endregion provider-agents

// #region helpers
func complete(ctx context.Context, c Caller, role pipeline.Role, prompt string) (string, error) {
	resp, err := c.Call(ctx, provider.CapabilityCompletion, provider.Request{Params: map[string]any{
		"role":   string(role),
		"prompt": prompt,
	}})
	if err != nil {
		return "", err
	}
	text, _ := resp.Data["text"].(string)
	if text == "" {
		return "", fmt.Errorf("%s: empty completion from %s", role, resp.ProviderID)
	}
	return text, nil
}

// renderData prefers a "report" string; otherwise it lists the fields in
// key order.
func renderData(data map[string]any) string {
	if r, ok := data["report"].(string); ok {
		return r
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, data[k])
	}
	return strings.TrimSpace(b.String())
}

func reportDigest(sc *pipeline.SharedContext) string {
	var b strings.Builder
	for _, role := range pipeline.AnalystRoles {
		field, _ := pipeline.OutputField(role)
		if r, ok := sc.Report(field); ok {
			fmt.Fprintf(&b, "## %s\n%s\n", field, r)
		}
	}
	return strings.TrimSpace(b.String())
}

// #endregion helpers
