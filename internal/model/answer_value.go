package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AnswerKind tags which field of AnswerValue is populated.
type AnswerKind string

const (
	AnswerKindNone    AnswerKind = ""
	AnswerKindString  AnswerKind = "string"
	AnswerKindStrings AnswerKind = "strings"
	AnswerKindBool    AnswerKind = "bool"
)

// ErrAnswerTypeMismatch is returned when a submitted value cannot answer the question kind.
var ErrAnswerTypeMismatch = errors.New("answer type mismatch")

// AnswerValue is the raw submitted value: a string, a set of strings or a boolean.
// On the wire it is the bare JSON value.
type AnswerValue struct {
	Kind    AnswerKind
	String  string
	Strings []string
	Bool    bool
}

func StringAnswer(s string) AnswerValue     { return AnswerValue{Kind: AnswerKindString, String: s} }
func StringsAnswer(s ...string) AnswerValue { return AnswerValue{Kind: AnswerKindStrings, Strings: s} }
func BoolAnswer(b bool) AnswerValue         { return AnswerValue{Kind: AnswerKindBool, Bool: b} }

// IsZero reports whether no value was supplied.
func (v AnswerValue) IsZero() bool { return v.Kind == AnswerKindNone }

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case AnswerKindString:
		return json.Marshal(v.String)
	case AnswerKindStrings:
		if v.Strings == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Strings)
	case AnswerKindBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = AnswerValue{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		v.Kind = AnswerKindString
		return json.Unmarshal(data, &v.String)
	case '[':
		v.Kind = AnswerKindStrings
		return json.Unmarshal(data, &v.Strings)
	case 't', 'f':
		v.Kind = AnswerKindBool
		return json.Unmarshal(data, &v.Bool)
	default:
		return fmt.Errorf("%w: unsupported JSON value", ErrAnswerTypeMismatch)
	}
}

// ForQuestion coerces the value into the canonical shape for the question kind:
// a string for single-choice, short-answer and essay, a de-duplicated set for
// multiple-choice and a boolean for true/false.
func (v AnswerValue) ForQuestion(t QuestionType) (AnswerValue, error) {
	if v.IsZero() {
		return v, fmt.Errorf("%w: empty answer", ErrAnswerTypeMismatch)
	}

	switch t {
	case QuestionTypeSingleChoice, QuestionTypeShortAnswer, QuestionTypeEssay:
		if v.Kind == AnswerKindStrings && len(v.Strings) == 1 && t == QuestionTypeSingleChoice {
			return StringAnswer(v.Strings[0]), nil
		}
		if v.Kind != AnswerKindString {
			return v, fmt.Errorf("%w: %s expects a string", ErrAnswerTypeMismatch, t)
		}
		return v, nil

	case QuestionTypeMultipleChoice:
		var in []string
		switch v.Kind {
		case AnswerKindStrings:
			in = v.Strings
		case AnswerKindString:
			in = []string{v.String}
		default:
			return v, fmt.Errorf("%w: %s expects a list of option ids", ErrAnswerTypeMismatch, t)
		}
		seen := make(map[string]struct{}, len(in))
		out := make([]string, 0, len(in))
		for _, s := range in {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
		return StringsAnswer(out...), nil

	case QuestionTypeTrueFalse:
		switch v.Kind {
		case AnswerKindBool:
			return v, nil
		case AnswerKindString:
			b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v.String)))
			if err != nil {
				return v, fmt.Errorf("%w: %s expects a boolean", ErrAnswerTypeMismatch, t)
			}
			return BoolAnswer(b), nil
		}
		return v, fmt.Errorf("%w: %s expects a boolean", ErrAnswerTypeMismatch, t)
	}
	return v, fmt.Errorf("%w: unknown question type %q", ErrAnswerTypeMismatch, t)
}
