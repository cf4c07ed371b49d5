package rollout

import "fmt"

// #region aggregate
// Aggregate folds samples into per-variant statistics. Both variants are
// always present in the result, possibly with zero counts.
func Aggregate(samples []Sample) map[Variant]VariantStats {
	type accum struct {
		count, completed, confCount int
		elapsedSum, confSum         float64
	}
	acc := map[Variant]*accum{
		VariantBaseline:  {},
		VariantCandidate: {},
	}

	for _, s := range samples {
		a, ok := acc[s.Variant]
		if !ok {
			continue
		}
		a.count++
		if !s.Success {
			continue
		}
		a.completed++
		a.elapsedSum += s.ElapsedSeconds
		if s.Confidence != nil {
			a.confCount++
			a.confSum += *s.Confidence
		}
	}

	out := make(map[Variant]VariantStats, len(acc))
	for v, a := range acc {
		st := VariantStats{Variant: v, Count: a.count, Completed: a.completed}
		if a.count > 0 {
			st.SuccessRate = float64(a.completed) / float64(a.count) * 100
		}
		if a.completed > 0 {
			st.AvgElapsedSeconds = a.elapsedSum / float64(a.completed)
		}
		if a.confCount > 0 {
			st.AvgConfidence = a.confSum / float64(a.confCount)
		}
		out[v] = st
	}
	return out
}

// #endregion aggregate

// #region recommend
// Recommend compares candidate against baseline and suggests a new rollout
// percentage. It never applies anything.
func Recommend(current int, baseline, candidate VariantStats, cfg PromotionConfig) Recommendation {
	current = Clamp(current)
	rec := Recommendation{
		CurrentPercentage: current,
		Baseline:          baseline,
		Candidate:         candidate,
	}

	if candidate.Count < cfg.MinSamples {
		rec.Action = ActionNeedsMoreData
		rec.SuggestedPercentage = min(current+cfg.NeedsDataStep, cfg.NeedsDataCap)
		rec.Reasons = []string{fmt.Sprintf("candidate has %d samples, need %d", candidate.Count, cfg.MinSamples)}
		return rec
	}

	var failing []string
	if candidate.SuccessRate < baseline.SuccessRate {
		failing = append(failing, fmt.Sprintf("success rate %.1f%% below baseline %.1f%%",
			candidate.SuccessRate, baseline.SuccessRate))
	}
	elapsedCeiling := baseline.AvgElapsedSeconds * cfg.ElapsedTolerance
	if candidate.AvgElapsedSeconds > elapsedCeiling {
		failing = append(failing, fmt.Sprintf("avg elapsed %.2fs exceeds %.2fs (baseline %.2fs x %.2f)",
			candidate.AvgElapsedSeconds, elapsedCeiling, baseline.AvgElapsedSeconds, cfg.ElapsedTolerance))
	}

	if len(failing) == 0 {
		rec.Action = ActionSubgraphReady
		rec.SuggestedPercentage = min(current+cfg.PromoteStep, 100)
		rec.Reasons = []string{fmt.Sprintf("success rate %.1f%% >= baseline %.1f%% and avg elapsed %.2fs <= %.2fs",
			candidate.SuccessRate, baseline.SuccessRate, candidate.AvgElapsedSeconds, elapsedCeiling)}
		return rec
	}

	rec.Action = ActionMonolithBetter
	rec.SuggestedPercentage = max(current-cfg.DemoteStep, 0)
	rec.Reasons = failing
	return rec
}

// #endregion recommend
