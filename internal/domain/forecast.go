package domain

import "time"

// Pipeline stages in the order a forecast run visits them.
type Stage string

const (
	StageInit      Stage = "INIT"
	StageSimulate  Stage = "SIMULATE"
	StageSummarize Stage = "SUMMARIZE"
	StageCorrect   Stage = "CORRECT"
	StageMerge     Stage = "MERGE"
	StageDone      Stage = "DONE"
)

// ParsedCorrection is the outcome of validating an untrusted correction
// response. Exactly one of Values or Failure is set.
type ParsedCorrection struct {
	// Values holds the validated series, each entry in [0,1].
	Values []float64
	// Strategy names the parsing strategy that matched.
	Strategy string
	// Clamped counts values that fell inside the tolerance band but outside
	// [0,1] and were clamped.
	Clamped int
	// Failure describes why no valid series could be extracted.
	Failure *CorrectionError
}

// Valid reports whether the correction carries a usable series.
func (p ParsedCorrection) Valid() bool { return p.Failure == nil && p.Values != nil }

// ForecastMetadata carries the diagnostics of a forecast run.
type ForecastMetadata struct {
	Features      FeatureSummary `json:"features"`
	Prompt        string         `json:"prompt"`
	RawResponse   string         `json:"raw_response,omitempty"`
	Fallback      bool           `json:"fallback"`
	FailureReason string         `json:"failure_reason,omitempty"`
	FailureStage  string         `json:"failure_stage,omitempty"`
	ParseStrategy string         `json:"parse_strategy,omitempty"`
	ClampedValues int            `json:"clamped_values,omitempty"`
	Model         string         `json:"model,omitempty"`
	Stages        []Stage        `json:"stages"`
}

// Forecast is the final hourly soil-moisture series with its diagnostics.
type Forecast struct {
	ID            string           `json:"id"`
	IssuedAt      time.Time        `json:"issued_at"`
	GeneratedAt   time.Time        `json:"generated_at"`
	HorizonHours  int              `json:"horizon_hours"`
	Values        []float64        `json:"values"`
	DailyAverages []float64        `json:"daily_averages"`
	Metadata      ForecastMetadata `json:"metadata"`
}

// DailyAverages averages the series in consecutive windows of hoursPerDay.
// A trailing partial window is averaged over the hours it contains.
func DailyAverages(values []float64, hoursPerDay int) []float64 {
	if hoursPerDay <= 0 || len(values) == 0 {
		return []float64{}
	}
	out := make([]float64, 0, (len(values)+hoursPerDay-1)/hoursPerDay)
	for start := 0; start < len(values); start += hoursPerDay {
		end := min(start+hoursPerDay, len(values))
		var sum float64
		for _, v := range values[start:end] {
			sum += v
		}
		out = append(out, sum/float64(end-start))
	}
	return out
}
