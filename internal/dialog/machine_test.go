package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/drlike/asthmabot/internal/archive"
	"github.com/drlike/asthmabot/internal/kakao"
	"github.com/drlike/asthmabot/internal/queue"
	"github.com/drlike/asthmabot/internal/report"
	"github.com/drlike/asthmabot/internal/schema"
	"github.com/drlike/asthmabot/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	question    string
	questionErr error
	extraction  schema.ExtractedData
	extractErr  error
	waitMessage string
	detail      *report.AllergyTestDetail
	detailErr   error

	lastQuestionHistory []string
}

func (f *fakeLLM) GenerateNextQuestion(ctx context.Context, history []string, extracted schema.ExtractedData) (string, error) {
	f.lastQuestionHistory = append([]string(nil), history...)
	if f.questionErr != nil {
		return "", f.questionErr
	}
	if f.question == "" {
		return "혹시 아이가 기침을 하나요?", nil
	}
	return f.question, nil
}

func (f *fakeLLM) AnalyzeConversation(ctx context.Context, history []string) (schema.ExtractedData, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	if f.extraction != nil {
		return f.extraction, nil
	}
	return schema.NewExtractedData(), nil
}

func (f *fakeLLM) GenerateWaitMessage(ctx context.Context, history []string) string {
	if f.waitMessage == "" {
		return "분석하고 있어요!"
	}
	return f.waitMessage
}

func (f *fakeLLM) AnalyzeAllergyImage(ctx context.Context, imageURL string) (*report.AllergyTestDetail, error) {
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.detail, nil
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*queue.AnalysisTask
	err   error
}

func (f *fakeQueue) Enqueue(ctx context.Context, task *queue.AnalysisTask) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeQueue) Close() error { return nil }

type fakeArchiver struct {
	mu      sync.Mutex
	records []*archive.Record
}

func (f *fakeArchiver) Archive(ctx context.Context, rec *archive.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeArchiver) Close() error { return nil }

type fakeNotifier struct {
	mu        sync.Mutex
	delivered []*kakao.Response
	urls      []string
}

func (f *fakeNotifier) Deliver(ctx context.Context, callbackURL string, resp *kakao.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, resp)
	f.urls = append(f.urls, callbackURL)
	return nil
}

type fixture struct {
	machine  *Machine
	store    *session.MemoryStore
	llm      *fakeLLM
	queue    *fakeQueue
	archiver *fakeArchiver
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := session.NewMemoryStore(10 * time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:    store,
		llm:      &fakeLLM{},
		queue:    &fakeQueue{},
		archiver: &fakeArchiver{},
		notifier: &fakeNotifier{},
	}
	f.machine = NewMachine(store, f.llm, f.queue, f.archiver, f.notifier)
	return f
}

func simpleTextOf(t *testing.T, resp *kakao.Response) string {
	t.Helper()
	require.NotNil(t, resp.Template)
	require.NotEmpty(t, resp.Template.Outputs)
	require.NotNil(t, resp.Template.Outputs[0].SimpleText)
	return resp.Template.Outputs[0].SimpleText.Text
}

const cb = "https://bot-api.kakao.com/callback/abc"

func TestInitSeedsSessionAndAsksFirstQuestion(t *testing.T) {
	f := newFixture(t)
	f.llm.question = "안녕하세요! 아이에게 어떤 증상이 있나요?"

	resp, err := f.machine.Handle(context.Background(), "user-1", "아이가 쌕쌕거려요", cb)
	require.NoError(t, err)
	assert.Equal(t, f.llm.question, simpleTextOf(t, resp))

	sess, err := f.store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateCollecting, sess.State)
	require.Len(t, sess.History, 2)
	assert.Equal(t, "사용자: 아이가 쌕쌕거려요", sess.History[0])
	assert.Equal(t, "챗봇: "+f.llm.question, sess.History[1])
	assert.Len(t, sess.ExtractedData, len(schema.Fields))
}

func TestInitExpandsInitials(t *testing.T) {
	f := newFixture(t)

	_, err := f.machine.Handle(context.Background(), "user-1", "ㅇㅇ", cb)
	require.NoError(t, err)

	sess, err := f.store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "사용자: 응", sess.History[0])
}

func TestCollectingAnalysisKeywordAsksForConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedSession(t, f.store, session.StateCollecting, []string{"사용자: 기침해요", "챗봇: 열도 있나요?"})

	resp, err := f.machine.Handle(ctx, "user-1", "이제 분석해줘", cb)
	require.NoError(t, err)
	assert.Equal(t, confirmPrompt, simpleTextOf(t, resp))

	sess, err := f.store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateConfirmAnalysis, sess.State)
	// No LLM turn on the keyword leg.
	assert.Nil(t, f.llm.lastQuestionHistory)
}

func TestCollectingAppendsTurnsAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedSession(t, f.store, session.StateCollecting, []string{"사용자: 기침해요", "챗봇: 밤에 심한가요?"})
	f.llm.question = "혹시 가족 중에 천식이 있나요?"

	resp, err := f.machine.Handle(ctx, "user-1", "밤에 더 심해요", cb)
	require.NoError(t, err)
	assert.Equal(t, f.llm.question, simpleTextOf(t, resp))

	sess, err := f.store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateCollecting, sess.State)
	require.Len(t, sess.History, 4)
	assert.Equal(t, "사용자: 밤에 더 심해요", sess.History[2])
	assert.Equal(t, "챗봇: "+f.llm.question, sess.History[3])
}

func TestCollectingSentinelFlipsToConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedSession(t, f.store, session.StateCollecting, []string{"사용자: 기침해요", "챗봇: 열도 있나요?"})
	f.llm.question = "혹시 더 말씀하고 싶은 다른 증상이 있으신가요? 없으시다면 '분석해줘'라고 말씀해주세요."

	_, err := f.machine.Handle(ctx, "user-1", "열은 없어요", cb)
	require.NoError(t, err)

	sess, err := f.store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateConfirmAnalysis, sess.State)
}

func TestCollectingQuestionFailureUsesFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedSession(t, f.store, session.StateCollecting, []string{"사용자: 기침해요", "챗봇: 열도 있나요?"})
	f.llm.questionErr = errors.New("model unavailable")

	resp, err := f.machine.Handle(ctx, "user-1", "열은 없어요", cb)
	require.NoError(t, err)
	assert.Equal(t, fallbackQuestion, simpleTextOf(t, resp))

	sess, err := f.store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateCollecting, sess.State)
	assert.Equal(t, "챗봇: "+fallbackQuestion, sess.History[len(sess.History)-1])
}

func TestCollectingAffirmativeAfterBotProposalEnqueues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedSession(t, f.store, session.StateCollecting, []string{
		"사용자: 기침해요",
		"챗봇: " + confirmPrompt,
	})

	resp, err := f.machine.Handle(ctx, "user-1", "네 좋아요", cb)
	require.NoError(t, err)

	assert.True(t, resp.UseCallback)
	require.NotNil(t, resp.Data)
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, "user-1", f.queue.tasks[0].UserKey)
	assert.Equal(t, cb, f.queue.tasks[0].CallbackURL)
}

func TestConfirmWithoutCallbackURLDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedSession(t, f.store, session.StateConfirmAnalysis, []string{"사용자: 기침해요", "챗봇: " + confirmPrompt})

	resp, err := f.machine.Handle(ctx, "user-1", "네", "")
	require.NoError(t, err)
	assert.Equal(t, missingCallback, simpleTextOf(t, resp))

	sess, err := f.store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateConfirmAnalysis, sess.State)
	assert.Empty(t, f.queue.tasks)
}

func TestConfirmAffirmativeEnqueuesWithUserTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedSession(t, f.store, session.StateConfirmAnalysis, []string{"사용자: 기침해요", "챗봇: " + confirmPrompt})
	f.llm.waitMessage = "꼼꼼하게 보고 있어요!"

	resp, err := f.machine.Handle(ctx, "user-1", "ㅇㅋ", cb)
	require.NoError(t, err)

	assert.True(t, resp.UseCallback)
	assert.Equal(t, "꼼꼼하게 보고 있어요!", resp.Data.Text)

	require.Len(t, f.queue.tasks, 1)
	task := f.queue.tasks[0]
	assert.Equal(t, "사용자: 오케이", task.History[len(task.History)-1])
}

func TestConfirmNegativeRevertsToCollecting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedSession(t, f.store, session.StateConfirmAnalysis, []string{"사용자: 기침해요", "챗봇: " + confirmPrompt})

	resp, err := f.machine.Handle(ctx, "user-1", "아직이요", cb)
	require.NoError(t, err)
	assert.Equal(t, inviteMoreSymptoms, simpleTextOf(t, resp))

	sess, err := f.store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateCollecting, sess.State)
	assert.Empty(t, f.queue.tasks)
}

func TestProcessAnalysisDeliversResultCardAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	extraction := schema.NewExtractedData()
	extraction[schema.FieldWheeze] = "Y"
	extraction[schema.FieldSymptomDuration] = "3개월 넘게"
	extraction[schema.FieldFamilyHistory] = "Y"
	f.llm.extraction = extraction

	task := &queue.AnalysisTask{
		UserKey:       "user-1",
		History:       []string{"사용자: 석 달째 쌕쌕거려요"},
		ExtractedData: schema.NewExtractedData(),
		CallbackURL:   cb,
	}
	require.NoError(t, f.machine.ProcessAnalysis(ctx, task))

	require.Len(t, f.notifier.delivered, 1)
	resp := f.notifier.delivered[0]
	require.NotNil(t, resp.Template)
	card := resp.Template.Outputs[0].BasicCard
	require.NotNil(t, card)
	assert.Contains(t, card.Description, "가능성이 높아 보입니다")
	assert.Contains(t, card.Thumbnail.ImageURL, "high")
	assert.Equal(t, cb, f.notifier.urls[0])

	sess, err := f.store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatePostAnalysis, sess.State)
	assert.Equal(t, "Y", sess.ExtractedData[schema.FieldWheeze])
}

func TestProcessAnalysisFailureDeliversApologyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.llm.extractErr = errors.New("extraction exploded")

	task := &queue.AnalysisTask{
		UserKey:     "user-1",
		History:     []string{"사용자: 안녕"},
		CallbackURL: cb,
	}
	require.NoError(t, f.machine.ProcessAnalysis(ctx, task))

	require.Len(t, f.notifier.delivered, 1)
	text := simpleTextOf(t, f.notifier.delivered[0])
	assert.Equal(t, analysisApology, text)
	require.Len(t, f.notifier.delivered[0].Template.QuickReplies, 1)
	assert.Equal(t, resetRetry, f.notifier.delivered[0].Template.QuickReplies[0].Label)

	// No session advance on failure.
	_, err := f.store.Get(ctx, "user-1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestPostAnalysisDetailedResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	data := schema.NewExtractedData()
	data[schema.FieldWheeze] = "Y"
	data[schema.FieldFever] = "N"
	seedSessionWithData(t, f.store, session.StatePostAnalysis, []string{"사용자: 기침"}, data)

	resp, err := f.machine.Handle(ctx, "user-1", "상세 결과 보기", cb)
	require.NoError(t, err)

	text := simpleTextOf(t, resp)
	assert.Contains(t, text, "상세 분석 결과")
	assert.Contains(t, text, schema.FieldWheeze+": 확인됨 ✅")

	// State unchanged.
	sess, err := f.store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatePostAnalysis, sess.State)
}

func TestPostAnalysisTerminationArchivesAndClears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	data := schema.NewExtractedData()
	data[schema.FieldWheeze] = "Y"
	seedSessionWithData(t, f.store, session.StatePostAnalysis, []string{"사용자: 기침"}, data)

	resp, err := f.machine.Handle(ctx, "user-1", "이제 그만할게요", cb)
	require.NoError(t, err)
	assert.Equal(t, closingMessage, simpleTextOf(t, resp))

	require.Len(t, f.archiver.records, 1)
	assert.Equal(t, "user-1", f.archiver.records[0].UserKey)
	assert.Equal(t, "Y", f.archiver.records[0].ExtractedData[schema.FieldWheeze])

	_, err = f.store.Get(ctx, "user-1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestPostAnalysisOtherUtteranceResumesCollecting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedSession(t, f.store, session.StatePostAnalysis, []string{"사용자: 기침", "챗봇: 결과입니다"})
	f.llm.question = "언제부터 그러셨나요?"

	resp, err := f.machine.Handle(ctx, "user-1", "요즘은 콧물도 나요", cb)
	require.NoError(t, err)
	assert.Equal(t, f.llm.question, simpleTextOf(t, resp))

	sess, err := f.store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "사용자: 요즘은 콧물도 나요", sess.History[len(sess.History)-2])
}

func TestResetButtonsStartOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	data := schema.NewExtractedData()
	data[schema.FieldWheeze] = "Y"
	seedSessionWithData(t, f.store, session.StatePostAnalysis, []string{"사용자: 기침"}, data)

	_, err := f.machine.Handle(ctx, "user-1", "다시 검사하기", cb)
	require.NoError(t, err)

	sess, err := f.store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateCollecting, sess.State)
	assert.Nil(t, sess.ExtractedData[schema.FieldWheeze])
	require.Len(t, sess.History, 2)
	assert.Equal(t, "사용자: 다시 검사하기", sess.History[0])
}

func TestHandleImageRequiresCallback(t *testing.T) {
	f := newFixture(t)

	resp, err := f.machine.HandleImage(context.Background(), "user-1", "http://cdn/scan.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, missingCallback, simpleTextOf(t, resp))
}

func TestHandleImageFoldsFindingsAndDelivers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedSession(t, f.store, session.StateCollecting, []string{"사용자: 기침해요", "챗봇: 열도 있나요?"})

	f.llm.detail = &report.AllergyTestDetail{
		TestType: "MAST",
		TotalIgE: "320 IU/mL",
		AirborneAllergens: []report.Allergen{
			{Name: "집먼지진드기", Class: 4, Value: "17.5", Result: "양성"},
		},
		FoodAllergens: []report.Allergen{
			{Name: "우유", Class: 0, Value: "0.1", Result: "음성"},
		},
	}
	f.llm.question = "혹시 밤에 기침이 심한가요?"

	resp, err := f.machine.HandleImage(ctx, "user-1", "http://cdn/scan.jpg", cb)
	require.NoError(t, err)
	assert.True(t, resp.UseCallback)

	f.machine.WaitBackground()

	sess, err := f.store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Y", sess.ExtractedData[schema.FieldAirborneAllergen])
	assert.Equal(t, "집먼지진드기(4, 17.5)", sess.ExtractedData[schema.KeyAirborneAllergenNotes])
	assert.Nil(t, sess.ExtractedData[schema.FieldFoodAllergen])
	assert.Equal(t, "320 IU/mL", sess.ExtractedData[schema.KeyTotalIgE])
	assert.NotEmpty(t, sess.ExtractedData[schema.KeyAllergyTestDetail])

	require.GreaterOrEqual(t, len(sess.History), 4)
	assert.Equal(t, imageUploadLog, sess.History[2])
	assert.Contains(t, sess.History[3], "MAST")

	require.Len(t, f.notifier.delivered, 1)
	assert.Equal(t, f.llm.question, simpleTextOf(t, f.notifier.delivered[0]))
}

func TestHandleImageFailureDeliversApology(t *testing.T) {
	f := newFixture(t)
	f.llm.detailErr = errors.New("vision failed")

	resp, err := f.machine.HandleImage(context.Background(), "user-1", "http://cdn/scan.jpg", cb)
	require.NoError(t, err)
	assert.True(t, resp.UseCallback)

	f.machine.WaitBackground()

	require.Len(t, f.notifier.delivered, 1)
	assert.Equal(t, imageApology, simpleTextOf(t, f.notifier.delivered[0]))
}

func seedSession(t *testing.T, store session.Store, state session.State, history []string) {
	t.Helper()
	seedSessionWithData(t, store, state, history, schema.NewExtractedData())
}

func seedSessionWithData(t *testing.T, store session.Store, state session.State, history []string, data schema.ExtractedData) {
	t.Helper()
	err := store.Put(context.Background(), "user-1", &session.Update{
		State:         &state,
		History:       history,
		ExtractedData: data,
	})
	require.NoError(t, err)
}
