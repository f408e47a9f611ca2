// Package kakao translates between the Kakao i Open Builder skill wire
// format (v2.0 envelope) and the service's internal types. It is a pure
// wire adapter: no business logic lives here.
package kakao

import (
	"regexp"
	"strings"
)

// Result card thumbnails, selected by verdict polarity.
const (
	imageURLHighRisk = "https://github.com/brown-sung/drlike5-GCP/blob/main/asthma_high2.png?raw=true"
	imageURLLowRisk  = "https://github.com/brown-sung/drlike5-GCP/blob/main/asthma_low2.png?raw=true"
)

// The platform caps quick replies at 10 per message.
const maxQuickReplies = 10

// SkillRequest is the inbound webhook payload. Only the fields the
// service consumes are modeled.
type SkillRequest struct {
	UserRequest struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Utterance   string `json:"utterance"`
		CallbackURL string `json:"callbackUrl"`
		Params      struct {
			Media *Media `json:"media"`
		} `json:"params"`
	} `json:"userRequest"`
}

// Media is an attached upload reference.
type Media struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// UserKey returns the opaque end-user identity.
func (r *SkillRequest) UserKey() string { return r.UserRequest.User.ID }

// Utterance returns the raw utterance text.
func (r *SkillRequest) Utterance() string { return r.UserRequest.Utterance }

// CallbackURL returns the caller-supplied callback delivery address.
func (r *SkillRequest) CallbackURL() string { return r.UserRequest.CallbackURL }

// ImageURL returns the attached image URL, or "" when the request
// carries no image.
func (r *SkillRequest) ImageURL() string {
	m := r.UserRequest.Params.Media
	if m == nil || m.Type != "image" {
		return ""
	}
	return m.URL
}

// Response is the outbound envelope. Exactly one of Template or Data is
// populated: Template for immediate answers, Data with UseCallback for
// the asynchronous-wait acknowledgement.
type Response struct {
	Version     string        `json:"version"`
	UseCallback bool          `json:"useCallback,omitempty"`
	Template    *Template     `json:"template,omitempty"`
	Data        *CallbackData `json:"data,omitempty"`
}

// Template holds the visible outputs and quick replies.
type Template struct {
	Outputs      []Output     `json:"outputs"`
	QuickReplies []QuickReply `json:"quickReplies,omitempty"`
}

// Output is a single rendered block.
type Output struct {
	SimpleText *SimpleTextOutput `json:"simpleText,omitempty"`
	BasicCard  *BasicCard        `json:"basicCard,omitempty"`
}

// SimpleTextOutput is a plain text bubble.
type SimpleTextOutput struct {
	Text string `json:"text"`
}

// BasicCard is a card with a thumbnail and buttons.
type BasicCard struct {
	Description string    `json:"description"`
	Thumbnail   Thumbnail `json:"thumbnail"`
	Buttons     []Button  `json:"buttons,omitempty"`
}

// Thumbnail is the card image.
type Thumbnail struct {
	ImageURL string `json:"imageUrl"`
}

// Button is a card action button.
type Button struct {
	Action      string `json:"action"`
	Label       string `json:"label"`
	MessageText string `json:"messageText"`
}

// QuickReply is a suggested follow-up utterance.
type QuickReply struct {
	Label       string `json:"label"`
	Action      string `json:"action"`
	MessageText string `json:"messageText"`
}

// CallbackData carries the wait text of an asynchronous acknowledgement.
type CallbackData struct {
	Text string `json:"text"`
}

var blankLines = regexp.MustCompile(`\n\s*\n`)

// CleanText strips artifacts that LLM output tends to carry into the
// envelope: wrapping double quotes, escaped quotes, and runs of blank
// lines.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = blankLines.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// SimpleText builds an immediate text response with optional quick
// replies.
func SimpleText(text string, quickReplies ...string) *Response {
	if len(quickReplies) > maxQuickReplies {
		quickReplies = quickReplies[:maxQuickReplies]
	}

	resp := &Response{
		Version: "2.0",
		Template: &Template{
			Outputs: []Output{{SimpleText: &SimpleTextOutput{Text: CleanText(text)}}},
		},
	}
	for _, q := range quickReplies {
		resp.Template.QuickReplies = append(resp.Template.QuickReplies, QuickReply{
			Label:       q,
			Action:      "message",
			MessageText: q,
		})
	}
	return resp
}

// CallbackWait builds the asynchronous-processing acknowledgement that
// tells the platform to hold the turn open for a callback delivery.
func CallbackWait(text string) *Response {
	return &Response{
		Version:     "2.0",
		UseCallback: true,
		Data:        &CallbackData{Text: text},
	}
}

// ResultCard builds the analysis-result card. highRisk selects the
// thumbnail polarity.
func ResultCard(description string, buttons []string, highRisk bool) *Response {
	imageURL := imageURLLowRisk
	if highRisk {
		imageURL = imageURLHighRisk
	}

	card := &BasicCard{
		Description: description,
		Thumbnail:   Thumbnail{ImageURL: imageURL},
	}
	for _, label := range buttons {
		card.Buttons = append(card.Buttons, Button{
			Action:      "message",
			Label:       label,
			MessageText: label,
		})
	}

	return &Response{
		Version:  "2.0",
		Template: &Template{Outputs: []Output{{BasicCard: card}}},
	}
}
