package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// QuestionKind discriminates the playable question variants.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple-choice"
	KindTrueFalse      QuestionKind = "true-false"
)

const (
	AnswerTrue  = "True"
	AnswerFalse = "False"
)

// Question is immutable once a game has started. Options and CorrectAnswer are
// always strings; true-false questions carry exactly {"True", "False"}.
type Question struct {
	ID            string       `json:"id"`
	Text          string       `json:"question"`
	Kind          QuestionKind `json:"type"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correctAnswer"`
}

// NewMultipleChoice builds a validated multiple-choice question.
func NewMultipleChoice(id, text string, options []string, correct string) (Question, error) {
	q := Question{
		ID:            id,
		Text:          text,
		Kind:          KindMultipleChoice,
		Options:       append([]string(nil), options...),
		CorrectAnswer: correct,
	}
	return q, q.Validate()
}

// NewTrueFalse builds a true-false question.
func NewTrueFalse(id, text string, correct bool) Question {
	return Question{
		ID:            id,
		Text:          text,
		Kind:          KindTrueFalse,
		Options:       []string{AnswerTrue, AnswerFalse},
		CorrectAnswer: BoolAnswer(correct),
	}
}

// BoolAnswer renders a boolean answer in its option form.
func BoolAnswer(v bool) string {
	if v {
		return AnswerTrue
	}
	return AnswerFalse
}

// Validate checks the variant rules for the question.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question %q has no text", ErrValidation, q.ID)
	}
	switch q.Kind {
	case KindMultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %q needs at least 2 options", ErrValidation, q.ID)
		}
		seen := make(map[string]struct{}, len(q.Options))
		for _, opt := range q.Options {
			if opt == "" {
				return fmt.Errorf("%w: question %q has an empty option", ErrValidation, q.ID)
			}
			if _, dup := seen[opt]; dup {
				return fmt.Errorf("%w: question %q repeats option %q", ErrValidation, q.ID, opt)
			}
			seen[opt] = struct{}{}
		}
	case KindTrueFalse:
		if len(q.Options) != 2 || q.Options[0] != AnswerTrue || q.Options[1] != AnswerFalse {
			return fmt.Errorf("%w: true-false question %q must offer True and False", ErrValidation, q.ID)
		}
	default:
		return fmt.Errorf("%w: question %q has unsupported type %q", ErrValidation, q.ID, q.Kind)
	}
	if !q.HasOption(q.CorrectAnswer) {
		return fmt.Errorf("%w: correct answer of question %q is not one of its options", ErrValidation, q.ID)
	}
	return nil
}

// HasOption reports whether answer is one of the question options.
func (q Question) HasOption(answer string) bool {
	for _, opt := range q.Options {
		if opt == answer {
			return true
		}
	}
	return false
}

// IsCorrect compares an answer against the correct one.
func (q Question) IsCorrect(answer string) bool {
	return answer == q.CorrectAnswer
}

type rawQuestion struct {
	ID            string          `json:"id"`
	Text          string          `json:"question"`
	Kind          QuestionKind    `json:"type"`
	Options       []string        `json:"options"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
}

// UnmarshalJSON accepts the loosely typed client/generator form (boolean or
// string correct answers, missing type) and closes it into a validated variant.
// A missing id is left empty; see AssignIDs.
func (q *Question) UnmarshalJSON(data []byte) error {
	var raw rawQuestion
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	correct, isBool, err := decodeAnswer(raw.CorrectAnswer)
	if err != nil {
		return fmt.Errorf("%w: question %q: %v", ErrValidation, raw.ID, err)
	}

	kind := raw.Kind
	if kind == "" {
		if isBool || len(raw.Options) == 0 {
			kind = KindTrueFalse
		} else {
			kind = KindMultipleChoice
		}
	}

	parsed := Question{ID: raw.ID, Text: raw.Text, Kind: kind}
	switch kind {
	case KindTrueFalse:
		parsed.Options = []string{AnswerTrue, AnswerFalse}
		switch strings.ToLower(correct) {
		case "true":
			parsed.CorrectAnswer = AnswerTrue
		case "false":
			parsed.CorrectAnswer = AnswerFalse
		default:
			parsed.CorrectAnswer = correct
		}
	default:
		parsed.Options = raw.Options
		parsed.CorrectAnswer = correct
	}

	if err := parsed.Validate(); err != nil {
		return err
	}
	*q = parsed
	return nil
}

// DecodeAnswer turns a submitted answer (string or boolean JSON) into its option form.
func DecodeAnswer(raw json.RawMessage) (string, error) {
	answer, _, err := decodeAnswer(raw)
	return answer, err
}

func decodeAnswer(raw json.RawMessage) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false, fmt.Errorf("missing answer")
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return BoolAnswer(b), true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, fmt.Errorf("answer must be a string or boolean")
	}
	if strings.TrimSpace(s) == "" {
		return "", false, fmt.Errorf("missing answer")
	}
	return s, false, nil
}

// AssignIDs fills missing question ids and rejects duplicates.
func AssignIDs(questions []Question, newID func() string) ([]Question, error) {
	out := make([]Question, len(questions))
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if q.ID == "" {
			q.ID = newID()
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate question id %q", ErrValidation, q.ID)
		}
		seen[q.ID] = struct{}{}
		out[i] = q
	}
	return out, nil
}

// ParseQuestionArray decodes a JSON question array as produced by the question
// generator, tolerating a surrounding ```json fence.
func ParseQuestionArray(text []byte) ([]Question, error) {
	text = bytes.TrimSpace(text)
	if bytes.HasPrefix(text, []byte("```")) {
		text = bytes.TrimPrefix(text, []byte("```json"))
		text = bytes.TrimPrefix(text, []byte("```"))
		text = bytes.TrimSuffix(bytes.TrimSpace(text), []byte("```"))
	}
	var questions []Question
	if err := json.Unmarshal(text, &questions); err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: questions are not a JSON array: %v", ErrValidation, err)
	}
	return questions, nil
}
