// Package report renders scoring verdicts and collected symptom data
// into user-facing Korean text. Rendering is fixed-template and
// deterministic; the only dynamic parts are the collected values.
package report

import (
	"fmt"
	"strings"

	"github.com/drlike/asthmabot/internal/schema"
	"github.com/drlike/asthmabot/internal/scoring"
)

const disclaimer = "⚠️ 제공하는 결과는 참고용이며, 의학적인 진단을 대신할 수 없습니다. 서비스 내용만으로 취한 조치에 대해서는 책임을 지지 않습니다."

const highRiskText = `상담 결과, 현재 증상이 천식으로 인한 가능성이 높아 보입니다.

정확한 진단과 적절한 치료를 위해 소아청소년과 전문의와 상담할 것을 권장드립니다.

😷 실내를 깨끗하게 유지하고, 대기 오염이 심한 날에는 외출을 자제하거나 마스크를 착용해 주세요.

🚿 외출 후에는 손과 얼굴을 깨끗이 씻고, 감기에 걸리지 않도록 주의해 주세요.

🦠 알레르기를 유발하는 물질을 찾아 피하는 것이 중요해요. 알레르기 검사를 통해 원인을 정확히 파악하면 도움이 될 거예요.

✅ 기관지 확장제를 가지고 계신 경우, 사용법을 정확히 숙지하고, 필요할 때 올바르게 사용해 주세요.

` + disclaimer

const lowRiskText = `상담 결과, 현재 증상이 천식으로 인한 가능성은 높지 않은 것으로 보입니다.

다만, 정확한 진단과 안심을 위해 소아청소년과 전문의와 상담해 보시는 것을 추천합니다. 아이의 건강을 위해 예방적 관리가 중요하지만, 과도하게 걱정하지 않으셔도 됩니다.

😷 실내를 깨끗하게 유지하고, 대기 오염이 심한 날에는 외출을 자제하거나 마스크를 착용해 주세요.

🚿 외출 후에는 손과 얼굴을 깨끗이 씻고, 감기에 걸리지 않도록 주의해 주세요.

🚭 아이의 호흡기 질환을 악화시킬 수 있는 간접흡연은 반드시 피해주세요.

🏃🏻‍♀️ 규칙적인 가벼운 운동은 천식 예방에 도움이 되며, 찬 공기에서는 실내 운동을 추천해요.

` + disclaimer

var (
	highRiskReplies = []string{"소아 천식이란?", "기구 사용 방법", "다시 검사하기", "처음으로"}
	lowRiskReplies  = []string{"천식 예방 방법", "다시 검사하기", "처음으로"}
)

// Result is a rendered verdict: the main message plus suggested
// follow-up utterances.
type Result struct {
	MainText     string
	QuickReplies []string
}

// Format selects the message template for a verdict. Any non-high
// polarity (including insufficient information) uses the low-risk
// template; that collapse is intentional.
func Format(v scoring.Verdict) Result {
	if v.Possibility == scoring.PossibilityHigh {
		return Result{MainText: highRiskText, QuickReplies: highRiskReplies}
	}
	return Result{MainText: lowRiskText, QuickReplies: lowRiskReplies}
}

// FormatDetailed renders a category-grouped breakdown of the collected
// data, showing only fields that were actually discussed. Y/N values
// render as confirmed/denied markers, free text renders verbatim. When
// an allergy-test detail side channel is present and parses, it is
// rendered as a preamble section; malformed detail is skipped without
// failing the rest of the render.
func FormatDetailed(data schema.ExtractedData) string {
	var b strings.Builder
	b.WriteString("📋 상세 분석 결과\n")

	if raw, ok := data[schema.KeyAllergyTestDetail].(string); ok && raw != "" {
		if detail, err := ParseAllergyTestDetail(raw); err == nil {
			writeAllergySection(&b, detail)
		}
	}

	for _, cat := range schema.Categories {
		var lines []string
		for _, field := range cat.Fields {
			v, ok := data[field]
			if !ok || v == nil {
				continue
			}
			s, ok := v.(string)
			if !ok || s == "" {
				continue
			}
			lines = append(lines, "• "+field+": "+renderValue(s))
		}
		if len(lines) == 0 {
			continue
		}
		b.WriteString("\n[" + cat.Label + "]\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderValue(s string) string {
	switch s {
	case "Y":
		return "확인됨 ✅"
	case "N":
		return "아님 ❌"
	default:
		return s
	}
}

func writeAllergySection(b *strings.Builder, detail *AllergyTestDetail) {
	b.WriteString("\n[알레르기 검사 결과]\n")
	if detail.TestType != "" {
		b.WriteString("• 검사 종류: " + detail.TestType + "\n")
	}
	if detail.TotalIgE != "" {
		b.WriteString("• 총 IgE: " + detail.TotalIgE + "\n")
	}

	groups := []struct {
		label string
		items []Allergen
	}{
		{"공중 항원", detail.AirborneAllergens},
		{"식품 항원", detail.FoodAllergens},
		{"기타 항원", detail.OtherAllergens},
	}
	for _, g := range groups {
		if len(g.items) == 0 {
			continue
		}
		b.WriteString("• " + g.label + ":\n")
		for _, a := range g.items {
			marker := " "
			if a.Positive() {
				marker = " 🔴"
			}
			b.WriteString(fmt.Sprintf("   - %s (class %d, %s)%s\n", a.Name, a.Class, a.Value, marker))
		}
	}
}
