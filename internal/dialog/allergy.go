package dialog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/drlike/asthmabot/internal/report"
	"github.com/drlike/asthmabot/internal/schema"
)

// foldAllergyDetail converts a vision analysis into a partial
// extracted-data update: positive findings flip the antigen flags and
// fill the detail side channels, and the whole record is stored
// serialized for the detailed-result view.
func foldAllergyDetail(current schema.ExtractedData, detail *report.AllergyTestDetail) schema.ExtractedData {
	update := schema.ExtractedData{}

	airborne, food, _ := detail.PositiveAllergens()
	if len(airborne) > 0 {
		update[schema.FieldAirborneAllergen] = "Y"
		update[schema.KeyAirborneAllergenNotes] = report.SummarizeAllergens(airborne)
	}
	if len(food) > 0 {
		update[schema.FieldFoodAllergen] = "Y"
		update[schema.KeyFoodAllergenNotes] = report.SummarizeAllergens(food)
	}
	if detail.TotalIgE != "" {
		update[schema.KeyTotalIgE] = detail.TotalIgE
	}

	if raw, err := json.Marshal(detail); err == nil {
		update[schema.KeyAllergyTestDetail] = string(raw)
	}

	return update
}

// summarizeAllergyDetail renders the chat-visible summary of a parsed
// allergy report.
func summarizeAllergyDetail(detail *report.AllergyTestDetail) string {
	testType := detail.TestType
	if testType == "" {
		testType = "알레르기 검사"
	}

	total := len(detail.AirborneAllergens) + len(detail.FoodAllergens) + len(detail.OtherAllergens)
	airborne, food, other := detail.PositiveAllergens()
	positive := len(airborne) + len(food) + len(other)

	var b strings.Builder
	fmt.Fprintf(&b, "📋 **%s 결과 분석 완료**\n\n", testType)
	b.WriteString("🔍 **검사 개요:**\n")
	fmt.Fprintf(&b, "• 총 검사 항목: %d개\n", total)
	fmt.Fprintf(&b, "• 양성 반응: %d개\n", positive)
	if detail.TotalIgE != "" {
		fmt.Fprintf(&b, "• 총 IgE: %s\n", detail.TotalIgE)
	}

	if positive > 0 {
		b.WriteString("\n⚠️ **양성 항목:**\n")
		for _, group := range [][]report.Allergen{airborne, food, other} {
			for _, a := range group {
				fmt.Fprintf(&b, "• %s (%d, %s)\n", a.Name, int(a.Class), a.Value)
			}
		}
	}

	b.WriteString("\n이 정보가 증상 분석에 반영됩니다. 다른 증상에 대해서도 말씀해 주세요.")
	return b.String()
}
