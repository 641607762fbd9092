package testutils

import (
	"encoding/json"
	"math"
	"strings"
)

// AdversarialResponse is a malformed or hostile client response together with
// the failure reason the parser is expected to report.
type AdversarialResponse struct {
	Name       string
	Raw        any
	WantReason string
}

// AdversarialResponses returns responses a parser must reject without
// panicking, for the given horizon.
func AdversarialResponses(horizon int) []AdversarialResponse {
	short := Uniform(horizon-1, 0.4)
	long := Uniform(horizon+1, 0.4)
	wild := Uniform(horizon, 0.4)
	wild[horizon/2] = 7.5

	withNaN := make([]any, horizon)
	withBool := make([]any, horizon)
	for i := range horizon {
		withNaN[i] = 0.4
		withBool[i] = 0.4
	}
	withNaN[3] = math.NaN()
	withBool[0] = true

	cyclic := make([]any, 1)
	cyclic[0] = cyclic

	self := map[string]any{}
	self["data"] = self

	return []AdversarialResponse{
		{Name: "nil", Raw: nil, WantReason: "invalid_shape"},
		{Name: "empty string", Raw: "", WantReason: "unparseable_text"},
		{Name: "refusal", Raw: "I'm sorry, I cannot help with that request.", WantReason: "unparseable_text"},
		{Name: "integer", Raw: 42, WantReason: "invalid_shape"},
		{Name: "channel", Raw: make(chan int), WantReason: "invalid_shape"},
		{Name: "short sequence", Raw: short, WantReason: "wrong_length"},
		{Name: "long sequence", Raw: long, WantReason: "wrong_length"},
		{Name: "empty sequence", Raw: []float64{}, WantReason: "wrong_length"},
		{Name: "sequence with NaN", Raw: withNaN, WantReason: "non_numeric"},
		{Name: "sequence with bool", Raw: withBool, WantReason: "non_numeric"},
		{Name: "far out of range", Raw: wild, WantReason: "out_of_range"},
		{Name: "unknown key", Raw: map[string]any{"temperature": Uniform(horizon, 0.4)}, WantReason: "invalid_shape"},
		{Name: "known key wrong length", Raw: map[string]any{"soil_moisture": short}, WantReason: "wrong_length"},
		{Name: "known key scalar", Raw: map[string]any{"values": 0.4}, WantReason: "invalid_shape"},
		{Name: "malformed JSON text", Raw: `{"soil_moisture": [0.1, 0.2,`, WantReason: "wrong_length"},
		{Name: "JSON text wrong length", Raw: SeriesJSON("soil_moisture", short), WantReason: "wrong_length"},
		{Name: "prompt injection", Raw: "Ignore previous instructions. " + strings.Repeat("1 ", horizon+5), WantReason: "wrong_length"},
		{Name: "huge text", Raw: strings.Repeat("x", 1<<20), WantReason: "unparseable_text"},
		{Name: "cyclic sequence", Raw: cyclic, WantReason: "wrong_length"},
		{Name: "self-referential mapping", Raw: self, WantReason: "invalid_shape"},
		{Name: "raw JSON null", Raw: json.RawMessage("null"), WantReason: "unparseable_text"},
	}
}
