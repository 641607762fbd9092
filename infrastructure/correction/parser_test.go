package correction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-soilcast/internal/domain"
	"github.com/ahrav/go-soilcast/internal/testutils"
)

const horizon = domain.DefaultHorizonHours

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) / float64(n)
	}
	return out
}

func joinFloats(values []float64, sep string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, sep)
}

// TestParser_AcceptedShapes covers every response shape the parser accepts and
// the strategy that should claim it.
func TestParser_AcceptedShapes(t *testing.T) {
	want := ramp(horizon)
	asAny := make([]any, horizon)
	asStrings := make([]string, horizon)
	asNumbers := make([]json.Number, horizon)
	for i, v := range want {
		asAny[i] = v
		asStrings[i] = fmt.Sprintf("%g", v)
		asNumbers[i] = json.Number(fmt.Sprintf("%g", v))
	}

	tests := []struct {
		name         string
		raw          any
		wantStrategy string
	}{
		{"float slice", want, StrategySequence},
		{"pointer to float slice", &want, StrategySequence},
		{"any slice", asAny, StrategySequence},
		{"numeric strings", asStrings, StrategySequence},
		{"json numbers", asNumbers, StrategySequence},
		{"array", [horizon]float64(want), StrategySequence},
		{"mapping soil_moisture", map[string]any{"soil_moisture": want}, StrategyMapping},
		{"mapping values", map[string][]float64{"values": want}, StrategyMapping},
		{"mapping case and punctuation", map[string]any{"Soil-Moisture": asAny}, StrategyMapping},
		{"mapping typo within distance", map[string]any{"soil_moistre": want}, StrategyMapping},
		{"mapping nested under unknown key", map[string]any{"result": map[string]any{"predictions": want}}, StrategyMapping},
		{"mapping nested under known key", map[string]any{"forecast": map[string]any{"values": want}}, StrategyMapping},
		{"mapping value as text", map[string]any{"soil_moisture": joinFloats(want, ", ")}, StrategyMapping},
		{"json text", testutils.SeriesJSON("soil_moisture", want), StrategyMapping},
		{"json bytes", []byte(testutils.SeriesJSON("values", want)), StrategyMapping},
		{"raw message", json.RawMessage(testutils.SeriesJSON("predictions", want)), StrategyMapping},
		{"fenced json", "Here you go:\n```json\n" + testutils.SeriesJSON("soil_moisture", want) + "\n```\nThanks.", StrategyMapping},
		{"json array text", "[" + joinFloats(want, ",") + "]", StrategySequence},
		{"prose with numbers", "Hourly values: " + joinFloats(want, " then ") + ".", StrategyText},
		{"newline separated", joinFloats(want, "\n"), StrategyText},
		{"single string element", []any{testutils.SeriesJSON("soil_moisture", want)}, StrategyMapping},
		{"single mapping element", []any{map[string]any{"soil_moisture": want}}, StrategyMapping},
	}

	p := MustParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.raw, horizon)

			require.Nil(t, got.Failure, "unexpected failure: %v", got.Failure)
			require.True(t, got.Valid())
			assert.Equal(t, tt.wantStrategy, got.Strategy)
			require.Len(t, got.Values, horizon)
			for i := range want {
				assert.InDelta(t, want[i], got.Values[i], 1e-12, "hour %d", i+1)
			}
		})
	}
}

// TestParser_RoundTripIdentity verifies a perfectly formatted response carrying
// arbitrary float64 values comes back bit-for-bit unchanged.
func TestParser_RoundTripIdentity(t *testing.T) {
	values := make([]float64, horizon)
	for i := range values {
		values[i] = 0.45 - float64(i)*0.0013337
	}

	p := MustParser()
	for name, raw := range map[string]any{
		"slice": values,
		"text":  testutils.SeriesJSON("soil_moisture", values),
	} {
		t.Run(name, func(t *testing.T) {
			got := p.Parse(raw, horizon)
			require.True(t, got.Valid())
			assert.Equal(t, values, got.Values)
			assert.Zero(t, got.Clamped)
		})
	}
}

func TestParser_ToleranceBand(t *testing.T) {
	p := MustParser()

	t.Run("values inside the band are clamped", func(t *testing.T) {
		values := testutils.Uniform(horizon, 0.5)
		values[0] = -0.04
		values[1] = 1.049

		got := p.Parse(values, horizon)

		require.True(t, got.Valid())
		assert.Equal(t, 0.0, got.Values[0])
		assert.Equal(t, 1.0, got.Values[1])
		assert.Equal(t, 2, got.Clamped)
		assert.Equal(t, -0.04, values[0], "input must not be modified")
	})

	t.Run("values outside the band are rejected", func(t *testing.T) {
		for _, bad := range []float64{-0.06, 1.06, 100} {
			values := testutils.Uniform(horizon, 0.5)
			values[10] = bad

			got := p.Parse(values, horizon)

			require.NotNil(t, got.Failure, "value %v should be rejected", bad)
			assert.Equal(t, domain.ReasonOutOfRange, got.Failure.Reason)
			assert.Equal(t, domain.CorrectionStageValidate, got.Failure.Stage)
			assert.Nil(t, got.Values)
		}
	})

	t.Run("custom band", func(t *testing.T) {
		cfg := DefaultParserConfig()
		cfg.ToleranceLow, cfg.ToleranceHigh = 0, 1
		strict, err := NewParser(cfg)
		require.NoError(t, err)

		values := testutils.Uniform(horizon, 0.5)
		values[0] = 1.01
		got := strict.Parse(values, horizon)

		require.NotNil(t, got.Failure)
		assert.Equal(t, domain.ReasonOutOfRange, got.Failure.Reason)
	})
}

// TestParser_Rejections runs the shared catalog of adversarial responses.
func TestParser_Rejections(t *testing.T) {
	p := MustParser()
	for _, tc := range testutils.AdversarialResponses(horizon) {
		t.Run(tc.Name, func(t *testing.T) {
			var got domain.ParsedCorrection
			require.NotPanics(t, func() { got = p.Parse(tc.Raw, horizon) })

			require.NotNil(t, got.Failure, "response must be rejected")
			assert.False(t, got.Valid())
			assert.Equal(t, tc.WantReason, got.Failure.Reason, "failure: %v", got.Failure)
			assert.True(t, errors.Is(got.Failure, domain.ErrResponseParse))
			assert.False(t, errors.Is(got.Failure, domain.ErrLLMInvocation))
		})
	}
}

// TestParser_TextFallsBackToNumericScan covers prose that embeds unrelated or
// broken JSON next to the series itself.
func TestParser_TextFallsBackToNumericScan(t *testing.T) {
	want := make([]float64, horizon)
	for i := range want {
		want[i] = 0.4 - float64(i)*0.001
	}
	short := testutils.Uniform(horizon-2, 0.3)

	tests := []struct {
		name         string
		raw          string
		wantStrategy string
		wantReason   string
		wantStage    string
	}{
		{
			name:         "unrelated object before the series",
			raw:          "Assumptions: {\"unit\": \"fraction\"}\n" + joinFloats(want, "\n"),
			wantStrategy: StrategyText,
		},
		{
			name:         "fenced metadata after the series",
			raw:          "Forecast: " + joinFloats(want, ", ") + "\n```json\n{\"confidence\": \"high\"}\n```",
			wantStrategy: StrategyText,
		},
		{
			name:       "short series with stray numbers outside",
			raw:        testutils.SeriesJSON("soil_moisture", short) + " covering hours 71 and 72",
			wantReason: domain.ReasonWrongLength,
			wantStage:  domain.CorrectionStageMapping,
		},
		{
			name:       "unknown key and no series outside",
			raw:        `Result: {"temperature": [1, 2, 3]}`,
			wantReason: domain.ReasonInvalidShape,
			wantStage:  domain.CorrectionStageMapping,
		},
	}

	p := MustParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.raw, horizon)

			if tt.wantReason != "" {
				require.NotNil(t, got.Failure)
				assert.Equal(t, tt.wantReason, got.Failure.Reason)
				assert.Equal(t, tt.wantStage, got.Failure.Stage)
				return
			}
			require.Nil(t, got.Failure, "unexpected failure: %v", got.Failure)
			assert.Equal(t, tt.wantStrategy, got.Strategy)
			require.Len(t, got.Values, horizon)
			for i := range want {
				assert.InDelta(t, want[i], got.Values[i], 1e-12, "hour %d", i+1)
			}
		})
	}
}

func TestParser_StageReporting(t *testing.T) {
	p := MustParser()
	short := testutils.Uniform(horizon-2, 0.3)

	tests := []struct {
		name      string
		raw       any
		wantStage string
	}{
		{"sequence", short, domain.CorrectionStageSequence},
		{"mapping", map[string]any{"values": short}, domain.CorrectionStageMapping},
		{"text", "0.1 0.2", domain.CorrectionStageText},
		{"shape", struct{}{}, domain.CorrectionStageShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.raw, horizon)
			require.NotNil(t, got.Failure)
			assert.Equal(t, tt.wantStage, got.Failure.Stage)
		})
	}
}

func TestParser_KeyPriorityAndDeterminism(t *testing.T) {
	p := MustParser()
	first := testutils.Uniform(horizon, 0.2)
	second := testutils.Uniform(horizon, 0.8)

	raw := map[string]any{"values": second, "soil_moisture": first}
	for range 20 {
		got := p.Parse(raw, horizon)
		require.True(t, got.Valid())
		assert.Equal(t, first, got.Values, "soil_moisture outranks values")
	}
}

func TestParser_FuzzyMatchingCanBeDisabled(t *testing.T) {
	cfg := DefaultParserConfig()
	cfg.KeyMatchDistance = 0
	p, err := NewParser(cfg)
	require.NoError(t, err)

	got := p.Parse(map[string]any{"soil_moistre": testutils.Uniform(horizon, 0.3)}, horizon)

	require.NotNil(t, got.Failure)
	assert.Equal(t, domain.ReasonInvalidShape, got.Failure.Reason)
}

func TestParser_NonPositiveHorizon(t *testing.T) {
	got := MustParser().Parse([]float64{}, 0)

	require.NotNil(t, got.Failure)
	assert.Equal(t, domain.ReasonInvalidShape, got.Failure.Reason)
}

func TestParserConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ParserConfig)
	}{
		{"positive low bound", func(c *ParserConfig) { c.ToleranceLow = 0.1 }},
		{"high bound below one", func(c *ParserConfig) { c.ToleranceHigh = 0.9 }},
		{"no keys", func(c *ParserConfig) { c.Keys = nil }},
		{"blank key", func(c *ParserConfig) { c.Keys = []string{""} }},
		{"distance too large", func(c *ParserConfig) { c.KeyMatchDistance = 10 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultParserConfig()
			tt.mutate(&cfg)

			_, err := NewParser(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`},
		{"object in prose", `Sure! {"a": [1, 2]} Hope that helps.`, `{"a": [1, 2]}`},
		{"brace inside string", `{"note": "use } carefully", "a": 1}`, `{"note": "use } carefully", "a": 1}`},
		{"escaped quote", `{"note": "say \"}\"", "a": 1}`, `{"note": "say \"}\"", "a": 1}`},
		{"fenced", "```json\n[1, 2]\n```", `[1, 2]`},
		{"fence without json", "```\nnot json\n```", ""},
		{"unterminated", `{"a": [1, 2`, ""},
		{"no json", "just words", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.response))
		})
	}
}

// FuzzParser_NeverPanics feeds arbitrary text through the parser and checks
// that every result is either a failure or a well-formed series.
func FuzzParser_NeverPanics(f *testing.F) {
	f.Add(testutils.SeriesJSON("soil_moisture", ramp(horizon)))
	f.Add("```json\n{\"values\": [0.1, 0.2]}\n```")
	f.Add(`{"soil_moisture": "1e309"}`)
	f.Add(strings.Repeat("[", 100))
	f.Add("-.5e-3 +7. .25")

	p := MustParser()
	f.Fuzz(func(t *testing.T, raw string) {
		got := p.Parse(raw, horizon)
		if got.Failure != nil {
			if got.Values != nil {
				t.Fatalf("failure %v carries values", got.Failure)
			}
			return
		}
		if len(got.Values) != horizon {
			t.Fatalf("got %d values, want %d", len(got.Values), horizon)
		}
		for i, v := range got.Values {
			if v < 0 || v > 1 {
				t.Fatalf("value %d = %v outside [0,1]", i, v)
			}
		}
	})
}
