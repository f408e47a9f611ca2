package dialog

// Fixed Korean surface strings. These are part of the conversation
// contract: the affirmative shortcut matches on confirmPrompt's tail
// and quick replies reference resetRetry verbatim.
const (
	confirmPrompt      = "알겠습니다. 그럼 지금까지 말씀해주신 내용을 바탕으로 분석을 진행해볼까요?"
	confirmPromptTail  = "분석을 진행해볼까요?"
	analysisSentinel   = "말씀하고 싶은 다른 증상"
	fallbackQuestion   = "혹시 아이에게 다른 증상이 있으신가요?"
	inviteMoreSymptoms = "알겠습니다. 더 말씀하고 싶은 증상이 있으신가요?"
	missingCallback    = "오류: 콜백 URL이 없습니다. 다시 시도해주세요."
	closingMessage     = "상담이 종료되었습니다. 이용해주셔서 감사합니다!"
	analysisApology    = "죄송합니다, 답변을 분석하는 중 오류가 발생했어요. 잠시 후 다시 시도해주세요. 😥"
	imageWaitMessage   = "알레르기 검사결과지를 꼼꼼하게 분석하고 있어요. 잠시만 기다려주세요! 🔬"
	imageApology       = "알레르기 검사결과지 분석 중 오류가 발생했어요. 다시 시도해주세요."
	detailedResultCmd  = "상세 결과 보기"
	resetRetry         = "다시 검사하기"

	userLinePrefix = "사용자: "
	botLinePrefix  = "챗봇: "
	imageUploadLog = "사용자: [알레르기 검사결과지 업로드]"
)
