package usecase

import "context"

// MetricsSummary represents aggregated submission insights.
type MetricsSummary struct {
	TotalSubmissions           int64   `json:"total_submissions"`
	ClassifiedSubmissions      int64   `json:"classified_submissions"`
	FailedSubmissions          int64   `json:"failed_submissions"`
	SuccessRate                float64 `json:"success_rate"`
	AverageTopConfidence       float64 `json:"average_top_confidence"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
}

// GetMetricsSummary aggregates submission metrics from persisted logs.
func (uc *SubmissionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrUnavailable
	}
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalSubmissions:           aggregation.TotalCount,
		ClassifiedSubmissions:      aggregation.ReadyCount,
		FailedSubmissions:          aggregation.TotalCount - aggregation.ReadyCount,
		AverageTopConfidence:       aggregation.AverageTopConfidence,
		AverageProcessingLatencyMs: aggregation.AverageProcessingLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.ReadyCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
