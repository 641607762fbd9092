package correction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-soilcast/internal/domain"
)

// Strategy names reported in ParsedCorrection.Strategy.
const (
	StrategySequence = "sequence"
	StrategyMapping  = "mapping"
	StrategyText     = "text"
)

// maxMappingDepth bounds how far nested mappings are searched for a known key.
const maxMappingDepth = 4

// numberPattern matches permissive numeric literals: signs, bare leading or
// trailing dots, and exponents.
var numberPattern = regexp.MustCompile(`[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`)

// ParserConfig holds the tolerance band and the mapping keys the parser
// recognizes.
type ParserConfig struct {
	// ToleranceLow and ToleranceHigh bound the values that are clamped into
	// [0,1]. Anything outside the band is rejected.
	ToleranceLow  float64 `yaml:"tolerance_low" json:"tolerance_low" envconfig:"SOILCAST_PARSER_TOLERANCE_LOW" validate:"lte=0,gte=-1"`
	ToleranceHigh float64 `yaml:"tolerance_high" json:"tolerance_high" envconfig:"SOILCAST_PARSER_TOLERANCE_HIGH" validate:"gte=1,lte=2"`

	// Keys lists the mapping keys that may hold the series, in priority order.
	Keys []string `yaml:"keys" json:"keys" envconfig:"SOILCAST_PARSER_KEYS" validate:"min=1,dive,required"`

	// KeyMatchDistance is the maximum edit distance between a response key
	// and a known key after normalization. Zero disables fuzzy matching.
	KeyMatchDistance int `yaml:"key_match_distance" json:"key_match_distance" envconfig:"SOILCAST_PARSER_KEY_MATCH_DISTANCE" validate:"gte=0,lte=3"`
}

// DefaultParserConfig returns the default tolerance band [-0.05, 1.05] and
// key set.
func DefaultParserConfig() ParserConfig {
	return ParserConfig{
		ToleranceLow:     -0.05,
		ToleranceHigh:    1.05,
		Keys:             []string{"soil_moisture", "values", "predictions", "forecast"},
		KeyMatchDistance: 1,
	}
}

var validate = validator.New()

// Validate checks the configuration.
func (c ParserConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: parser: %v", domain.ErrInvalidConfiguration, err)
	}
	return nil
}

// Parser turns untrusted responses into validated series.
type Parser struct {
	cfg  ParserConfig
	keys []string
}

// NewParser validates cfg and returns a Parser.
func NewParser(cfg ParserConfig) (*Parser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	keys := make([]string, len(cfg.Keys))
	for i, k := range cfg.Keys {
		keys[i] = normalizeKey(k)
	}
	cfg.Keys = append([]string(nil), cfg.Keys...)
	return &Parser{cfg: cfg, keys: keys}, nil
}

// MustParser returns a Parser for the default configuration.
func MustParser() *Parser {
	p, err := NewParser(DefaultParserConfig())
	if err != nil {
		panic(err)
	}
	return p
}

// shapeKind tags the structural variant of a response.
type shapeKind int

const (
	shapeUnsupported shapeKind = iota
	shapeSequence
	shapeMapping
	shapeText
)

// shape is a response classified into exactly one variant.
type shape struct {
	kind    shapeKind
	seq     []any
	mapping map[string]any
	text    string
	goType  string
}

// outcome is the result of one strategy attempt.
type outcome struct {
	values   []float64
	strategy string
	failure  *domain.CorrectionError
}

// Parse validates raw into exactly horizon values in [0,1]. Strategies are
// tried in order (sequence, mapping, text) and the first structural match is
// range-checked. Parse never panics.
func (p *Parser) Parse(raw any, horizon int) (result domain.ParsedCorrection) {
	defer func() {
		if r := recover(); r != nil {
			result = failed(domain.NewCorrectionError(domain.CorrectionStageShape, domain.ReasonInvalidShape,
				fmt.Sprintf("internal parser fault: %v", r), nil))
		}
	}()

	if horizon <= 0 {
		return failed(domain.NewCorrectionError(domain.CorrectionStageShape, domain.ReasonInvalidShape,
			fmt.Sprintf("horizon must be positive, got %d", horizon), nil))
	}

	s := classify(raw)
	var out outcome
	switch s.kind {
	case shapeSequence, shapeMapping:
		out = p.parseStructured(s, horizon)
	case shapeText:
		out = p.parseText(s.text, horizon)
	default:
		out.failure = domain.NewCorrectionError(domain.CorrectionStageShape, domain.ReasonInvalidShape,
			fmt.Sprintf("unsupported response type %s", s.goType), nil)
	}
	if out.failure != nil {
		return failed(out.failure)
	}
	return p.validateRange(out)
}

// parseStructured runs the sequence and mapping strategies against a shape.
func (p *Parser) parseStructured(s shape, horizon int) outcome {
	if s.kind == shapeSequence {
		values, ferr := coerceSeries(s.seq, horizon, domain.CorrectionStageSequence)
		return outcome{values: values, strategy: StrategySequence, failure: ferr}
	}
	return p.parseMapping(s.mapping, horizon, 0)
}

// parseMapping looks for a known key, falling back to searching nested
// mappings when none is present at this level.
func (p *Parser) parseMapping(m map[string]any, horizon, depth int) outcome {
	notFound := outcome{strategy: StrategyMapping, failure: domain.NewCorrectionError(
		domain.CorrectionStageMapping, domain.ReasonInvalidShape,
		fmt.Sprintf("no known key among %v", sortedKeys(m)), nil)}
	if depth >= maxMappingDepth {
		return notFound
	}

	if key, ok := p.matchKey(m); ok {
		return p.parseMappingValue(m[key], key, horizon, depth)
	}

	for _, k := range sortedKeys(m) {
		nested, ok := m[k].(map[string]any)
		if !ok {
			continue
		}
		if out := p.parseMapping(nested, horizon, depth+1); out.failure == nil ||
			out.failure.Reason != domain.ReasonInvalidShape {
			return out
		}
	}
	return notFound
}

func (p *Parser) parseMappingValue(v any, key string, horizon, depth int) outcome {
	inner := classify(v)
	switch inner.kind {
	case shapeSequence:
		values, ferr := coerceSeries(inner.seq, horizon, domain.CorrectionStageMapping)
		return outcome{values: values, strategy: StrategyMapping, failure: ferr}
	case shapeMapping:
		return p.parseMapping(inner.mapping, horizon, depth+1)
	case shapeText:
		values, ferr := scanNumbers(inner.text, horizon, domain.CorrectionStageMapping)
		return outcome{values: values, strategy: StrategyMapping, failure: ferr}
	default:
		return outcome{strategy: StrategyMapping, failure: domain.NewCorrectionError(
			domain.CorrectionStageMapping, domain.ReasonInvalidShape,
			fmt.Sprintf("key %q holds %s, want a sequence", key, inner.goType), nil)}
	}
}

// parseText decodes embedded JSON and runs the structural strategies on it.
// When that fails, the text outside the JSON fragment is scanned for numeric
// literals; the structural failure is reported only if the scan fails too.
// Numbers inside the fragment never count toward the scan.
func (p *Parser) parseText(text string, horizon int) outcome {
	if candidate := extractJSON(text); candidate != "" {
		if decoded, err := decodeJSON(candidate); err == nil {
			if s := classify(decoded); s.kind == shapeSequence || s.kind == shapeMapping {
				out := p.parseStructured(s, horizon)
				if out.failure == nil {
					return out
				}
				if values, ferr := scanNumbers(withoutFragment(text, candidate), horizon, domain.CorrectionStageText); ferr == nil {
					return outcome{values: values, strategy: StrategyText}
				}
				return out
			}
		}
	}

	values, ferr := scanNumbers(text, horizon, domain.CorrectionStageText)
	return outcome{values: values, strategy: StrategyText, failure: ferr}
}

// withoutFragment removes the first occurrence of fragment from text.
func withoutFragment(text, fragment string) string {
	before, after, found := strings.Cut(text, fragment)
	if !found {
		return text
	}
	return before + "\n" + after
}

// validateRange clamps values inside the tolerance band and rejects the
// series if any value lies outside it.
func (p *Parser) validateRange(out outcome) domain.ParsedCorrection {
	values := make([]float64, len(out.values))
	clamped := 0
	for i, v := range out.values {
		if v < p.cfg.ToleranceLow || v > p.cfg.ToleranceHigh {
			return failed(domain.NewCorrectionError(domain.CorrectionStageValidate, domain.ReasonOutOfRange,
				fmt.Sprintf("value %g at hour %d outside [%g, %g]", v, i+1, p.cfg.ToleranceLow, p.cfg.ToleranceHigh), nil))
		}
		switch {
		case v < domain.MinSoilMoisture:
			v = domain.MinSoilMoisture
			clamped++
		case v > domain.MaxSoilMoisture:
			v = domain.MaxSoilMoisture
			clamped++
		}
		values[i] = v
	}
	return domain.ParsedCorrection{Values: values, Strategy: out.strategy, Clamped: clamped}
}

// matchKey returns the response key matching the highest-priority known key,
// exactly after normalization or within the configured edit distance.
func (p *Parser) matchKey(m map[string]any) (string, bool) {
	keys := sortedKeys(m)
	normalized := make([]string, len(keys))
	for i, k := range keys {
		normalized[i] = normalizeKey(k)
	}

	for _, known := range p.keys {
		for i, nk := range normalized {
			if nk == known {
				return keys[i], true
			}
		}
	}

	if p.cfg.KeyMatchDistance == 0 {
		return "", false
	}
	for _, known := range p.keys {
		best, bestDist := -1, p.cfg.KeyMatchDistance+1
		for i, nk := range normalized {
			if nk == "" {
				continue
			}
			if d := levenshtein.ComputeDistance(nk, known); d < bestDist {
				best, bestDist = i, d
			}
		}
		if best >= 0 {
			return keys[best], true
		}
	}
	return "", false
}

// normalizeKey case-folds k and strips everything but letters and digits, so
// "Soil-Moisture" and "soil_moisture" compare equal.
func normalizeKey(k string) string {
	folded := cases.Fold().String(k)
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, folded)
}

// classify tags raw with its structural variant. Pointers and interfaces are
// dereferenced; a sequence holding a single non-numeric element is unwrapped.
func classify(raw any) shape { return classifyDepth(raw, 0) }

// maxIndirection bounds pointer chasing and single-element unwrapping, which
// would otherwise loop on self-referential values.
const maxIndirection = 8

func classifyDepth(raw any, depth int) shape {
	if depth > maxIndirection {
		return shape{kind: shapeUnsupported, goType: fmt.Sprintf("%T", raw)}
	}
	if raw == nil {
		return shape{kind: shapeUnsupported, goType: "nil"}
	}
	switch v := raw.(type) {
	case string:
		return shape{kind: shapeText, text: v, goType: "string"}
	case []byte:
		return shape{kind: shapeText, text: string(v), goType: "[]byte"}
	case json.RawMessage:
		return shape{kind: shapeText, text: string(v), goType: "json.RawMessage"}
	case map[string]any:
		return shape{kind: shapeMapping, mapping: v, goType: "map"}
	case []any:
		return unwrapSingle(shape{kind: shapeSequence, seq: v, goType: "slice"}, depth)
	}

	rv := reflect.ValueOf(raw)
	goType := rv.Type().String()
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return shape{kind: shapeUnsupported, goType: goType}
		}
		return classifyDepth(rv.Elem().Interface(), depth+1)
	case reflect.String:
		return shape{kind: shapeText, text: rv.String(), goType: goType}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return shape{kind: shapeSequence, seq: []any{}, goType: goType}
		}
		seq := make([]any, rv.Len())
		for i := range seq {
			seq[i] = rv.Index(i).Interface()
		}
		return unwrapSingle(shape{kind: shapeSequence, seq: seq, goType: goType}, depth)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return shape{kind: shapeUnsupported, goType: goType}
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return shape{kind: shapeMapping, mapping: m, goType: goType}
	default:
		return shape{kind: shapeUnsupported, goType: goType}
	}
}

func unwrapSingle(s shape, depth int) shape {
	if len(s.seq) != 1 {
		return s
	}
	if _, ok := toFloat(s.seq[0]); ok {
		return s
	}
	if inner := classifyDepth(s.seq[0], depth+1); inner.kind != shapeUnsupported {
		return inner
	}
	return s
}

// coerceSeries converts every element to a finite float64.
func coerceSeries(seq []any, horizon int, stage string) ([]float64, *domain.CorrectionError) {
	if len(seq) != horizon {
		return nil, domain.NewCorrectionError(stage, domain.ReasonWrongLength,
			fmt.Sprintf("got %d values, want %d", len(seq), horizon), nil)
	}
	values := make([]float64, len(seq))
	for i, el := range seq {
		f, ok := toFloat(el)
		if !ok {
			return nil, domain.NewCorrectionError(stage, domain.ReasonNonNumeric,
				fmt.Sprintf("element %d is %s", i, describe(el)), nil)
		}
		values[i] = f
	}
	return values, nil
}

// scanNumbers extracts numeric literals from text in order and requires
// exactly horizon of them.
func scanNumbers(text string, horizon int, stage string) ([]float64, *domain.CorrectionError) {
	tokens := numberPattern.FindAllString(text, -1)
	if len(tokens) == 0 {
		return nil, domain.NewCorrectionError(stage, domain.ReasonUnparseableText, "no numeric tokens found", nil)
	}
	if len(tokens) != horizon {
		return nil, domain.NewCorrectionError(stage, domain.ReasonWrongLength,
			fmt.Sprintf("found %d numeric tokens, want %d", len(tokens), horizon), nil)
	}
	values := make([]float64, len(tokens))
	for i, tok := range tokens {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, domain.NewCorrectionError(stage, domain.ReasonNonNumeric,
				fmt.Sprintf("token %d %q is not a finite number", i, tok), err)
		}
		values[i] = f
	}
	return values, nil
}

// toFloat converts numeric kinds, json.Number and numeric strings. Booleans,
// NaN and infinities are rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil, bool:
		return 0, false
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f = rv.Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			f = float64(rv.Uint())
		default:
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T(%v)", v, v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// extractJSON returns the first JSON object or array embedded in response,
// preferring the contents of a markdown code fence.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```"); start != -1 {
		body := response[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl != -1 {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end != -1 {
			if candidate := strings.TrimSpace(body[:end]); strings.HasPrefix(candidate, "{") || strings.HasPrefix(candidate, "[") {
				return candidate
			}
		}
	}

	start := strings.IndexAny(response, "{[")
	if start == -1 {
		return ""
	}

	// Match brackets while skipping string contents.
	depth := 0
	inString, escapeNext := false, false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escapeNext = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}

func failed(err *domain.CorrectionError) domain.ParsedCorrection {
	return domain.ParsedCorrection{Failure: err}
}
