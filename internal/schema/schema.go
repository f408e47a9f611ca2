// Package schema defines the fixed symptom vocabulary shared by the
// extraction prompt, the session's extracted-data map, and the scoring
// engine. The three must not drift: adding or removing a field here
// requires updating the extraction prompt and the scoring rules in
// lockstep.
package schema

// Core field names. Values are Korean because they double as the JSON
// keys the extraction model is instructed to emit.
const (
	FieldMedication        = "복용중 약"
	FieldPriorDiagnosis    = "기존 진단명"
	FieldPastHistory       = "과거 병력"
	FieldSymptomRelief     = "증상 완화 여부"
	FieldSymptomDuration   = "증상 지속"
	FieldCough             = "기침"
	FieldFever             = "발열"
	FieldRunnyNose         = "콧물"
	FieldClearRunnyNose    = "맑은 콧물"
	FieldNasalCongestion   = "코막힘"
	FieldItchyNose         = "코 가려움"
	FieldConjunctivitis    = "결막염"
	FieldHeadache          = "두통"
	FieldSoreThroat        = "인후통"
	FieldWheeze            = "쌕쌕거림"
	FieldDyspnea           = "호흡곤란"
	FieldChestTightness    = "가슴 답답"
	FieldNocturnal         = "야간"
	FieldBronchodilator    = "기관지확장제 사용"
	FieldFamilyHistory     = "가족력"
	FieldAsthmaHistory     = "천식 병력"
	FieldRhinitisHistory   = "알레르기 비염 병력"
	FieldBronchiolitis     = "모세기관지염 병력"
	FieldAtopyHistory      = "아토피 병력"
	FieldAirborneAllergen  = "공중 항원"
	FieldFoodAllergen      = "식품 항원"
	FieldExerciseSymptom   = "운동시 이상"
	FieldSeason            = "계절"
	FieldTemperature       = "기온"
	FieldPhlegm            = "가래"
	FieldSneeze            = "재채기"
	FieldPostnasalDrip     = "후비루"
)

// Side-channel keys stored alongside the flat symptom map. They are not
// part of the scoring vocabulary but are allowed on extracted_data.
const (
	KeyAllergyTestDetail     = "알레르기 검사 결과"
	KeyAirborneAllergenNotes = "공중 항원 상세"
	KeyFoodAllergenNotes     = "식품 항원 상세"
	KeyTotalIgE              = "총 IgE"
)

// Fields is the full ordered vocabulary. Order matters for the
// extraction prompt and for deterministic rendering.
var Fields = []string{
	FieldMedication,
	FieldPriorDiagnosis,
	FieldPastHistory,
	FieldSymptomRelief,
	FieldSymptomDuration,
	FieldCough,
	FieldFever,
	FieldRunnyNose,
	FieldClearRunnyNose,
	FieldNasalCongestion,
	FieldItchyNose,
	FieldConjunctivitis,
	FieldHeadache,
	FieldSoreThroat,
	FieldWheeze,
	FieldDyspnea,
	FieldChestTightness,
	FieldNocturnal,
	FieldBronchodilator,
	FieldFamilyHistory,
	FieldAsthmaHistory,
	FieldRhinitisHistory,
	FieldBronchiolitis,
	FieldAtopyHistory,
	FieldAirborneAllergen,
	FieldFoodAllergen,
	FieldExerciseSymptom,
	FieldSeason,
	FieldTemperature,
	FieldPhlegm,
	FieldSneeze,
	FieldPostnasalDrip,
}

// Category groups fields for the detailed-result renderer.
type Category struct {
	// Label is the Korean section heading.
	Label string
	// Fields lists the member field names in display order.
	Fields []string
}

// Categories is the display grouping used by the detailed breakdown.
// Every vocabulary field appears in exactly one category.
var Categories = []Category{
	{
		Label: "주요 증상",
		Fields: []string{
			FieldWheeze, FieldDyspnea, FieldChestTightness, FieldNocturnal,
			FieldCough, FieldPhlegm,
		},
	},
	{
		Label: "감기 증상",
		Fields: []string{
			FieldFever, FieldRunnyNose, FieldClearRunnyNose, FieldNasalCongestion,
			FieldItchyNose, FieldSneeze, FieldSoreThroat, FieldHeadache,
			FieldConjunctivitis, FieldPostnasalDrip,
		},
	},
	{
		Label: "병력",
		Fields: []string{
			FieldFamilyHistory, FieldAsthmaHistory, FieldRhinitisHistory,
			FieldBronchiolitis, FieldAtopyHistory, FieldPriorDiagnosis,
			FieldPastHistory,
		},
	},
	{
		Label:  "알레르기",
		Fields: []string{FieldAirborneAllergen, FieldFoodAllergen},
	},
	{
		Label: "기타",
		Fields: []string{
			FieldSymptomDuration, FieldSymptomRelief, FieldBronchodilator,
			FieldMedication, FieldExerciseSymptom, FieldSeason, FieldTemperature,
		},
	},
}

// ExtractedData maps a symptom field name to "Y", "N", caregiver-supplied
// free text, or nil when the field has not been discussed yet.
type ExtractedData map[string]any

// NewExtractedData returns a fresh map with every vocabulary field
// present and nil, and no other keys.
func NewExtractedData() ExtractedData {
	data := make(ExtractedData, len(Fields))
	for _, f := range Fields {
		data[f] = nil
	}
	return data
}

// IsField reports whether name is part of the fixed vocabulary.
func IsField(name string) bool {
	for _, f := range Fields {
		if f == name {
			return true
		}
	}
	return false
}
