package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AllergyTestDetail is the structured record produced by the image
// analysis path and stored serialized on the session as a side channel.
type AllergyTestDetail struct {
	TestType          string     `json:"test_type"`
	TotalIgE          string     `json:"total_ige"`
	AirborneAllergens []Allergen `json:"airborne_allergens"`
	FoodAllergens     []Allergen `json:"food_allergens"`
	OtherAllergens    []Allergen `json:"other_allergens"`
}

// Allergen is one test row. Class is the ordinal reaction class
// (0 = negative); Value is the measured concentration in IU/mL.
type Allergen struct {
	Name   string      `json:"name"`
	Code   string      `json:"code"`
	Class  FlexibleInt `json:"class"`
	Value  string      `json:"value"`
	Result string      `json:"result"`
}

// Positive reports whether the row indicates a positive reaction,
// either by explicit result flag or by class ordinal.
func (a Allergen) Positive() bool {
	return a.Result == "양성" || int(a.Class) >= 1
}

// FlexibleInt decodes from a JSON number or a numeric string. Vision
// model output is not strict about which it emits.
type FlexibleInt int

func (f *FlexibleInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		// Tolerate values like "3+" by taking the leading digits.
		digits := leadingDigits(s)
		if digits == "" {
			*f = 0
			return nil
		}
		n, err = strconv.Atoi(digits)
		if err != nil {
			*f = 0
			return nil
		}
	}
	*f = FlexibleInt(n)
	return nil
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// ParseAllergyTestDetail decodes the serialized side-channel record.
func ParseAllergyTestDetail(raw string) (*AllergyTestDetail, error) {
	var detail AllergyTestDetail
	if err := json.Unmarshal([]byte(raw), &detail); err != nil {
		return nil, fmt.Errorf("parse allergy test detail: %w", err)
	}
	return &detail, nil
}

// PositiveAllergens returns the positive rows from each category.
func (d *AllergyTestDetail) PositiveAllergens() (airborne, food, other []Allergen) {
	for _, a := range d.AirborneAllergens {
		if a.Positive() {
			airborne = append(airborne, a)
		}
	}
	for _, a := range d.FoodAllergens {
		if a.Positive() {
			food = append(food, a)
		}
	}
	for _, a := range d.OtherAllergens {
		if a.Positive() {
			other = append(other, a)
		}
	}
	return airborne, food, other
}

// SummarizeAllergens formats rows as "이름(class, value)" joined by
// commas, the shape stored in the 상세 side-channel fields.
func SummarizeAllergens(items []Allergen) string {
	parts := make([]string, 0, len(items))
	for _, a := range items {
		parts = append(parts, fmt.Sprintf("%s(%d, %s)", a.Name, int(a.Class), a.Value))
	}
	return strings.Join(parts, ", ")
}
