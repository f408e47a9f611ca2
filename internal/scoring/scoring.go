// Package scoring implements the asthma predictive-index heuristic.
//
// The rule is a fixed, auditable encoding of the pediatric asthma
// predictive index (1 major or 2 minor risk factors), evaluated after a
// cold-mimicry override and a symptom/chronicity gate. It is a pure
// function of the extracted symptom map: no I/O, no randomness. The
// thresholds and field groupings encode domain knowledge and must not
// be changed casually.
package scoring

import (
	"strings"

	"github.com/drlike/asthmabot/internal/schema"
)

// Possibility is the verdict polarity.
type Possibility string

const (
	// PossibilityHigh indicates the predictive-index criteria are met.
	PossibilityHigh Possibility = "있음"
	// PossibilityLow indicates asthma is unlikely from the collected data.
	PossibilityLow Possibility = "낮음"
	// PossibilityInsufficient indicates there was nothing to score.
	PossibilityInsufficient Possibility = "정보 부족"
)

// Verdict is the result of scoring: a polarity plus a human-readable
// Korean explanation. Ephemeral; folded into the formatted response and
// the archive record, never persisted on the session.
type Verdict struct {
	Possibility Possibility `json:"possibility"`
	Reason      string      `json:"reason"`
}

// Reason strings, verbatim from the clinical review of the rule.
const (
	reasonInsufficient = "분석할 증상 정보가 충분하지 않습니다."
	reasonColdLike     = "증상이 완화되고 있거나, 감기를 시사하는 증상(발열, 인후통)이 동반됩니다."
	reasonNoPattern    = "천식을 의심할 만한 특징적인 증상이나 발생 빈도가 확인되지 않았습니다."
	reasonIndexMet     = "천식 예측지수(API) 평가 결과, 주요 인자 또는 부가 인자 조건을 충족합니다."
	reasonIndexUnmet   = "천식 의심 증상은 있으나, 천식 예측지수(API)의 위험인자 조건을 충족하지 않습니다."
)

// Chronicity markers matched as substrings of caregiver-supplied free
// text. A deliberate simplification: the duration field is free text and
// these two literals are what the intake prompt produces.
const (
	durationChronicMarker       = "3개월"
	bronchodilatorChronicMarker = "3_개월"
)

// Score evaluates the extracted symptom map and returns a verdict.
// Rules are applied in order; the first match wins:
//
//  1. Relief of symptoms, fever, or sore throat present: low (cold-like
//     presentation overrides everything, including risk factors).
//  2. No core symptom (wheeze, dyspnea, chest tightness, nocturnal) or
//     no chronicity marker: low.
//  3. At least 1 major factor (family history, atopy) or 2 minor
//     factors (airborne + food allergen): high.
//  4. Otherwise: low.
//
// A nil or empty map scores as insufficient information.
func Score(data schema.ExtractedData) Verdict {
	if len(data) == 0 {
		return Verdict{Possibility: PossibilityInsufficient, Reason: reasonInsufficient}
	}

	if isYes(data, schema.FieldSymptomRelief) ||
		isYes(data, schema.FieldFever) ||
		isYes(data, schema.FieldSoreThroat) {
		return Verdict{Possibility: PossibilityLow, Reason: reasonColdLike}
	}

	hasCoreSymptom := isYes(data, schema.FieldWheeze) ||
		isYes(data, schema.FieldDyspnea) ||
		isYes(data, schema.FieldChestTightness) ||
		isYes(data, schema.FieldNocturnal)

	isChronic := contains(data, schema.FieldSymptomDuration, durationChronicMarker) ||
		contains(data, schema.FieldBronchodilator, bronchodilatorChronicMarker)

	if !hasCoreSymptom || !isChronic {
		return Verdict{Possibility: PossibilityLow, Reason: reasonNoPattern}
	}

	majorCount := 0
	if isYes(data, schema.FieldFamilyHistory) {
		majorCount++
	}
	if isYes(data, schema.FieldAtopyHistory) {
		majorCount++
	}

	minorCount := 0
	if isYes(data, schema.FieldAirborneAllergen) {
		minorCount++
	}
	if isYes(data, schema.FieldFoodAllergen) {
		minorCount++
	}

	if majorCount >= 1 || minorCount >= 2 {
		return Verdict{Possibility: PossibilityHigh, Reason: reasonIndexMet}
	}

	return Verdict{Possibility: PossibilityLow, Reason: reasonIndexUnmet}
}

func isYes(data schema.ExtractedData, field string) bool {
	s, ok := data[field].(string)
	return ok && s == "Y"
}

func contains(data schema.ExtractedData, field, marker string) bool {
	s, ok := data[field].(string)
	return ok && strings.Contains(s, marker)
}
