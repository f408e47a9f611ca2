package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drlike/asthmabot/internal/schema"
	"github.com/drlike/asthmabot/internal/scoring"
)

func TestFormat_HighVerdict(t *testing.T) {
	r := Format(scoring.Verdict{Possibility: scoring.PossibilityHigh})

	assert.Contains(t, r.MainText, "가능성이 높아 보입니다")
	assert.Contains(t, r.MainText, "진단을 대신할 수 없습니다")
	assert.Equal(t, []string{"소아 천식이란?", "기구 사용 방법", "다시 검사하기", "처음으로"}, r.QuickReplies)
}

func TestFormat_NonHighUsesLowTemplate(t *testing.T) {
	low := Format(scoring.Verdict{Possibility: scoring.PossibilityLow})
	insufficient := Format(scoring.Verdict{Possibility: scoring.PossibilityInsufficient})

	assert.Equal(t, low, insufficient)
	assert.Contains(t, low.MainText, "높지 않은 것으로 보입니다")
	assert.Equal(t, []string{"천식 예방 방법", "다시 검사하기", "처음으로"}, low.QuickReplies)
}

func TestFormatDetailed_GroupsAndMarkers(t *testing.T) {
	data := schema.NewExtractedData()
	data[schema.FieldWheeze] = "Y"
	data[schema.FieldFever] = "N"
	data[schema.FieldSymptomDuration] = "3개월 이상"

	out := FormatDetailed(data)

	assert.Contains(t, out, "[주요 증상]")
	assert.Contains(t, out, "쌕쌕거림: 확인됨 ✅")
	assert.Contains(t, out, "[감기 증상]")
	assert.Contains(t, out, "발열: 아님 ❌")
	assert.Contains(t, out, "증상 지속: 3개월 이상")
	// Undiscussed categories are omitted entirely.
	assert.NotContains(t, out, "[병력]")
}

func TestFormatDetailed_SkipsNulls(t *testing.T) {
	out := FormatDetailed(schema.NewExtractedData())
	assert.NotContains(t, out, "•")
}

func TestFormatDetailed_AllergyPreamble(t *testing.T) {
	data := schema.NewExtractedData()
	data[schema.KeyAllergyTestDetail] = `{
		"test_type": "MAST",
		"total_ige": "120 IU/mL",
		"airborne_allergens": [
			{"name": "집먼지진드기", "code": "d1", "class": 3, "value": "17.5", "result": "양성"},
			{"name": "돼지풀", "code": "w1", "class": "0", "value": "0.1", "result": "음성"}
		],
		"food_allergens": [
			{"name": "우유", "code": "f2", "class": "2", "value": "3.2", "result": "양성"}
		]
	}`

	out := FormatDetailed(data)

	assert.Contains(t, out, "[알레르기 검사 결과]")
	assert.Contains(t, out, "검사 종류: MAST")
	assert.Contains(t, out, "총 IgE: 120 IU/mL")
	assert.Contains(t, out, "집먼지진드기 (class 3, 17.5) 🔴")
	assert.Contains(t, out, "우유 (class 2, 3.2) 🔴")
	// Negative rows render without the positive marker.
	assert.Contains(t, out, "돼지풀 (class 0, 0.1)")
	assert.False(t, strings.Contains(out, "돼지풀 (class 0, 0.1) 🔴"))
}

func TestFormatDetailed_MalformedSideChannelDegrades(t *testing.T) {
	data := schema.NewExtractedData()
	data[schema.KeyAllergyTestDetail] = "{not valid json"
	data[schema.FieldCough] = "Y"

	var out string
	assert.NotPanics(t, func() { out = FormatDetailed(data) })
	assert.NotContains(t, out, "[알레르기 검사 결과]")
	assert.Contains(t, out, "기침: 확인됨 ✅")
}

func TestParseAllergyTestDetail_Positives(t *testing.T) {
	detail, err := ParseAllergyTestDetail(`{
		"airborne_allergens": [{"name": "고양이 털", "class": 2, "value": "5.1"}],
		"food_allergens": [{"name": "땅콩", "class": 0, "value": "0.2", "result": "음성"}],
		"other_allergens": [{"name": "라텍스", "class": 0, "value": "1.0", "result": "양성"}]
	}`)
	require.NoError(t, err)

	airborne, food, other := detail.PositiveAllergens()
	assert.Len(t, airborne, 1)
	assert.Empty(t, food)
	assert.Len(t, other, 1)

	assert.Equal(t, "고양이 털(2, 5.1)", SummarizeAllergens(airborne))
}
