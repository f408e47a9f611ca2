// Package dialog implements the consultation state machine. Each
// inbound utterance is dispatched on the session state; collaborators
// (store, model, task queue, archive, callback delivery) are injected
// so the flow logic stays testable with fakes.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/drlike/asthmabot/internal/archive"
	"github.com/drlike/asthmabot/internal/hangul"
	"github.com/drlike/asthmabot/internal/kakao"
	"github.com/drlike/asthmabot/internal/queue"
	"github.com/drlike/asthmabot/internal/report"
	"github.com/drlike/asthmabot/internal/schema"
	"github.com/drlike/asthmabot/internal/scoring"
	"github.com/drlike/asthmabot/internal/session"
)

// LLM is the model surface the machine needs.
type LLM interface {
	GenerateNextQuestion(ctx context.Context, history []string, extracted schema.ExtractedData) (string, error)
	AnalyzeConversation(ctx context.Context, history []string) (schema.ExtractedData, error)
	GenerateWaitMessage(ctx context.Context, history []string) string
	AnalyzeAllergyImage(ctx context.Context, imageURL string) (*report.AllergyTestDetail, error)
}

// Notifier delivers a finished response to the platform's callback URL.
type Notifier interface {
	Deliver(ctx context.Context, callbackURL string, resp *kakao.Response) error
}

// Machine drives one consultation per user key.
type Machine struct {
	store    session.Store
	llm      LLM
	queue    queue.TaskQueue
	archiver archive.Archiver
	notifier Notifier
	locks    *session.KeyedMutex

	bg sync.WaitGroup
}

// NewMachine wires a machine from its collaborators.
func NewMachine(store session.Store, llm LLM, taskQueue queue.TaskQueue, archiver archive.Archiver, notifier Notifier) *Machine {
	return &Machine{
		store:    store,
		llm:      llm,
		queue:    taskQueue,
		archiver: archiver,
		notifier: notifier,
		locks:    session.NewKeyedMutex(),
	}
}

// Handle processes one text utterance and returns the synchronous
// response. Same-key requests are serialized for the whole
// load-handle-persist cycle.
func (m *Machine) Handle(ctx context.Context, userKey, utterance, callbackURL string) (*kakao.Response, error) {
	unlock := m.locks.Lock(userKey)
	defer unlock()

	// Reset buttons win over every state.
	if isReset(utterance) {
		log.Printf("[Session Reset] user: %s, reason: %s", userKey, utterance)
		if err := m.store.Delete(ctx, userKey); err != nil {
			return nil, fmt.Errorf("reset session: %w", err)
		}
		return m.handleInit(ctx, userKey, utterance)
	}

	sess, err := m.store.Get(ctx, userKey)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			return nil, fmt.Errorf("load session: %w", err)
		}
		sess = session.New()
	}

	log.Printf("[State] user: %s, current: %s", userKey, sess.State)

	switch sess.State {
	case session.StateCollecting:
		return m.handleCollecting(ctx, userKey, utterance, sess, callbackURL)
	case session.StateConfirmAnalysis:
		return m.handleConfirmAnalysis(ctx, userKey, utterance, sess, callbackURL)
	case session.StatePostAnalysis:
		return m.handlePostAnalysis(ctx, userKey, utterance, sess, callbackURL)
	default:
		return m.handleInit(ctx, userKey, utterance)
	}
}

// handleInit seeds a fresh session and asks the first question. A
// question failure here bubbles up: there is no prior context worth
// saving yet.
func (m *Machine) handleInit(ctx context.Context, userKey, utterance string) (*kakao.Response, error) {
	converted := hangul.ExpandInitials(utterance)
	extracted := schema.NewExtractedData()
	history := []string{userLinePrefix + converted}

	question, err := m.llm.GenerateNextQuestion(ctx, history, extracted)
	if err != nil {
		return nil, fmt.Errorf("first question: %w", err)
	}
	history = append(history, botLinePrefix+question)

	collecting := session.StateCollecting
	if err := m.store.Put(ctx, userKey, &session.Update{
		State:         &collecting,
		History:       history,
		ExtractedData: extracted,
	}); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	return kakao.SimpleText(question), nil
}

func (m *Machine) handleCollecting(ctx context.Context, userKey, utterance string, sess *session.Session, callbackURL string) (*kakao.Response, error) {
	converted := hangul.ExpandInitials(utterance)

	if wantsAnalysis(converted) {
		if err := m.store.Put(ctx, userKey, session.WithState(session.StateConfirmAnalysis)); err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}
		return kakao.SimpleText(confirmPrompt), nil
	}

	// The model may itself have proposed the analysis in its last turn;
	// a bare agreement then skips straight to the confirm leg.
	if isAffirmative(utterance, converted) && lastLineContains(sess.History, confirmPromptTail) {
		return m.handleConfirmAnalysis(ctx, userKey, utterance, sess, callbackURL)
	}

	history := append(sess.History, userLinePrefix+converted)

	question, err := m.llm.GenerateNextQuestion(ctx, history, sess.ExtractedData)
	if err != nil {
		// Never surface a question failure: substitute a generic probe
		// and keep collecting.
		log.Printf("[Question Generation Error] user: %s: %v", userKey, err)
		history = append(history, botLinePrefix+fallbackQuestion)
		if err := m.store.Put(ctx, userKey, &session.Update{History: history}); err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}
		return kakao.SimpleText(fallbackQuestion), nil
	}

	history = append(history, botLinePrefix+question)

	update := &session.Update{History: history}
	if strings.Contains(question, analysisSentinel) {
		confirm := session.StateConfirmAnalysis
		update.State = &confirm
	}
	if err := m.store.Put(ctx, userKey, update); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	return kakao.SimpleText(question), nil
}

func (m *Machine) handleConfirmAnalysis(ctx context.Context, userKey, utterance string, sess *session.Session, callbackURL string) (*kakao.Response, error) {
	if callbackURL == "" {
		return kakao.SimpleText(missingCallback), nil
	}

	converted := hangul.ExpandInitials(utterance)

	if isAffirmative(utterance, converted) {
		history := append(sess.History, userLinePrefix+converted)

		waitMessage := m.llm.GenerateWaitMessage(ctx, history)

		task := &queue.AnalysisTask{
			UserKey:       userKey,
			History:       history,
			ExtractedData: sess.ExtractedData,
			CallbackURL:   callbackURL,
		}
		if err := m.queue.Enqueue(ctx, task); err != nil {
			return nil, fmt.Errorf("enqueue analysis: %w", err)
		}

		return kakao.CallbackWait(waitMessage), nil
	}

	if err := m.store.Put(ctx, userKey, session.WithState(session.StateCollecting)); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return kakao.SimpleText(inviteMoreSymptoms), nil
}

func (m *Machine) handlePostAnalysis(ctx context.Context, userKey, utterance string, sess *session.Session, callbackURL string) (*kakao.Response, error) {
	if utterance == detailedResultCmd {
		return kakao.SimpleText(report.FormatDetailed(sess.ExtractedData), resetRetry), nil
	}

	if isTermination(utterance) {
		return m.handleTermination(ctx, userKey, sess)
	}

	// Anything else is treated as a new symptom report.
	return m.handleCollecting(ctx, userKey, utterance, sess, callbackURL)
}

// handleTermination archives the finished consultation and clears the
// session.
func (m *Machine) handleTermination(ctx context.Context, userKey string, sess *session.Session) (*kakao.Response, error) {
	verdict := scoring.Score(sess.ExtractedData)
	if err := m.archiver.Archive(ctx, &archive.Record{
		UserKey:       userKey,
		History:       sess.History,
		ExtractedData: sess.ExtractedData,
		Verdict:       verdict,
	}); err != nil {
		log.Printf("[Archive Error] user: %s: %v", userKey, err)
	}

	if err := m.store.Delete(ctx, userKey); err != nil {
		return nil, fmt.Errorf("clear session: %w", err)
	}

	return kakao.SimpleText(closingMessage), nil
}

// ProcessAnalysis runs the deferred analysis leg and delivers exactly
// one callback: the result card on success, the apology on failure. The
// session is only advanced on success.
func (m *Machine) ProcessAnalysis(ctx context.Context, task *queue.AnalysisTask) error {
	unlock := m.locks.Lock(task.UserKey)
	defer unlock()

	log.Printf("[Callback Processing] user: %s", task.UserKey)

	var resp *kakao.Response
	extracted, err := m.llm.AnalyzeConversation(ctx, task.History)
	if err != nil {
		log.Printf("[Callback Error] user: %s: %v", task.UserKey, err)
		resp = kakao.SimpleText(analysisApology, resetRetry)
	} else {
		verdict := scoring.Score(extracted)
		result := report.Format(verdict)
		resp = kakao.ResultCard(result.MainText, result.QuickReplies,
			verdict.Possibility == scoring.PossibilityHigh)

		post := session.StatePostAnalysis
		if err := m.store.Put(ctx, task.UserKey, &session.Update{
			State:         &post,
			History:       task.History,
			ExtractedData: extracted,
		}); err != nil {
			// The card is still worth delivering; the user just loses
			// the post-analysis follow-ups.
			log.Printf("[Callback Persist Error] user: %s: %v", task.UserKey, err)
		}
	}

	if err := m.notifier.Deliver(ctx, task.CallbackURL, resp); err != nil {
		log.Printf("[Callback Delivery Error] user: %s: %v", task.UserKey, err)
		return fmt.Errorf("deliver callback: %w", err)
	}
	return nil
}

// HandleImage acknowledges an uploaded allergy report immediately and
// analyzes it in the background; the outcome arrives via the callback
// URL.
func (m *Machine) HandleImage(ctx context.Context, userKey, imageURL, callbackURL string) (*kakao.Response, error) {
	if callbackURL == "" {
		return kakao.SimpleText(missingCallback), nil
	}

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		ctx := context.WithoutCancel(ctx)
		if err := m.processAllergyImage(ctx, userKey, imageURL, callbackURL); err != nil {
			log.Printf("[Background Allergy Analysis Error] user: %s: %v", userKey, err)
			apology := kakao.SimpleText(imageApology)
			if err := m.notifier.Deliver(ctx, callbackURL, apology); err != nil {
				log.Printf("[Callback Delivery Error] user: %s: %v", userKey, err)
			}
		}
	}()

	return kakao.CallbackWait(imageWaitMessage), nil
}

// WaitBackground blocks until in-flight background analyses finish.
func (m *Machine) WaitBackground() {
	m.bg.Wait()
}

func (m *Machine) processAllergyImage(ctx context.Context, userKey, imageURL, callbackURL string) error {
	detail, err := m.llm.AnalyzeAllergyImage(ctx, imageURL)
	if err != nil {
		return err
	}

	unlock := m.locks.Lock(userKey)
	defer unlock()

	sess, err := m.store.Get(ctx, userKey)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			return fmt.Errorf("load session: %w", err)
		}
		sess = session.New()
	}

	update := foldAllergyDetail(sess.ExtractedData, detail)
	summary := summarizeAllergyDetail(detail)

	history := append(sess.History, imageUploadLog, botLinePrefix+summary)

	state := sess.State
	if state == session.StateInit {
		state = session.StateCollecting
	}
	if err := m.store.Put(ctx, userKey, &session.Update{
		State:         &state,
		History:       history,
		ExtractedData: update,
	}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	merged := sess.ExtractedData
	for k, v := range update {
		merged[k] = v
	}
	question, err := m.llm.GenerateNextQuestion(ctx, history, merged)
	if err != nil {
		return fmt.Errorf("post-image question: %w", err)
	}

	if err := m.notifier.Deliver(ctx, callbackURL, kakao.SimpleText(question)); err != nil {
		return fmt.Errorf("deliver callback: %w", err)
	}

	log.Printf("[Background Allergy Analysis] completed for user: %s", userKey)
	return nil
}

func lastLineContains(history []string, needle string) bool {
	if len(history) == 0 {
		return false
	}
	return strings.Contains(history[len(history)-1], needle)
}
