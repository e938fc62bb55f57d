package engine

import (
	"log/slog"

	"github.com/miradorstack/equipment-monitor/internal/models"
)

// Analyzer derives the full AnalysisResult of a repaired series.
type Analyzer struct {
	logger   *slog.Logger
	detector *Detector
}

// NewAnalyzer constructs an analyzer. A nil classifier uses the built-in vocabulary.
func NewAnalyzer(logger *slog.Logger, classifier Classifier) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{logger: logger, detector: NewDetector(classifier)}
}

// Analyze recomputes every metric from scratch. params must be in first-seen order: the first
// parameter is the primary one and the first two feed the correlation.
func (a *Analyzer) Analyze(series []models.DataPoint, params []string) models.AnalysisResult {
	if len(series) == 0 {
		return models.EmptyAnalysis()
	}

	result := models.EmptyAnalysis()
	result.Anomalies = a.detector.Detect(series, params)
	result.HealthScore = HealthScore(series, result.Anomalies, params)

	if len(params) >= 2 {
		result.Correlation = Correlation(series, params[0], params[1])
	}
	if len(params) > 0 {
		primary := params[0]
		result.Utilization = Utilization(series, primary)
		result.EnergyEfficiency = EnergyEfficiency(series, primary)
	}

	for _, param := range params {
		values := ParamValues(series, param)
		result.ProcessCapability[param] = ProcessCapability(values)
		result.Distributions[param] = Distribution(values)
	}

	a.logger.Debug("analysis complete",
		slog.Int("points", len(series)),
		slog.Int("params", len(params)),
		slog.Int("anomalies", len(result.Anomalies)),
		slog.Int("health_score", result.HealthScore),
	)
	return result
}
