package predict

// Estimate is the numeric outcome of a prediction before reasoning and
// staffing are attached.
type Estimate struct {
	PredictedCovers int      `json:"predicted_covers"`
	Confidence      float64  `json:"confidence"`
	Method          string   `json:"method"`
	PatternsCount   int      `json:"patterns_count"`
	Accuracy        Accuracy `json:"accuracy_metrics"`
}

// Accuracy estimates prediction error from the spread of the retrieved
// patterns. It is a proxy derived from pattern variance, not a backtest
// against recorded outcomes.
type Accuracy struct {
	Method             string   `json:"method"`
	EstimatedMAPE      *float64 `json:"estimated_mape"`
	PredictionInterval []int    `json:"prediction_interval,omitempty"`
	PatternsAnalyzed   int      `json:"patterns_analyzed,omitempty"`
	Note               string   `json:"note"`
}

// Calculate derives covers and confidence from the patterns via a
// similarity-weighted average. With no patterns at all it falls back to a
// fixed conservative estimate.
func Calculate(patterns []Pattern, synthetic bool) Estimate {
	if len(patterns) == 0 {
		return Estimate{
			PredictedCovers: 120,
			Confidence:      0.60,
			Method:          "fallback",
			Accuracy: Accuracy{
				Method: "fallback",
				Note:   "No patterns available for estimation",
			},
		}
	}

	var totalWeight, weightedSum float64
	for _, p := range patterns {
		totalWeight += p.Similarity
		weightedSum += float64(p.ActualCovers) * p.Similarity
	}
	predicted := int(weightedSum / totalWeight)
	confidence := round2(totalWeight / float64(len(patterns)))

	method := "weighted_average"
	if synthetic {
		method = "mock_patterns"
	}

	return Estimate{
		PredictedCovers: predicted,
		Confidence:      confidence,
		Method:          method,
		PatternsCount:   len(patterns),
		Accuracy:        estimateAccuracy(patterns),
	}
}

// estimateAccuracy reads prediction uncertainty off the covers spread: if
// similar services varied by X%, the prediction likely errs by about X%.
func estimateAccuracy(patterns []Pattern) Accuracy {
	if len(patterns) < 2 {
		return Accuracy{
			Method: "rag_weighted_average",
			Note:   "Insufficient patterns for variance estimation",
		}
	}

	var sum float64
	minCovers, maxCovers := patterns[0].ActualCovers, patterns[0].ActualCovers
	for _, p := range patterns {
		sum += float64(p.ActualCovers)
		if p.ActualCovers < minCovers {
			minCovers = p.ActualCovers
		}
		if p.ActualCovers > maxCovers {
			maxCovers = p.ActualCovers
		}
	}
	mean := sum / float64(len(patterns))

	var mape *float64
	if mean > 0 {
		var deviations float64
		for _, p := range patterns {
			d := float64(p.ActualCovers) - mean
			if d < 0 {
				d = -d
			}
			deviations += d / mean * 100
		}
		v := round1(deviations / float64(len(patterns)))
		mape = &v
	}

	return Accuracy{
		Method:             "rag_weighted_average",
		EstimatedMAPE:      mape,
		PredictionInterval: []int{minCovers, maxCovers},
		PatternsAnalyzed:   len(patterns),
		Note:               "Estimated from similar pattern variance, not backtested",
	}
}
