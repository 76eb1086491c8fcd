// Package dialog implements the intake conversation state machine as a
// pure decision function. It performs no I/O: given the current state, the
// answers collected so far and one inbound text, it yields the next state,
// the updated answers, the outbound replies and an optional side effect.
package dialog

import (
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/taborda-io/taborda/pkg/protocol"
)

// Effect is a side effect the caller must carry out after a decision.
type Effect int

const (
	EffectNone Effect = iota
	// EffectFinalize closes the conversation: the caller creates a
	// completed ticket and resets the conversation record.
	EffectFinalize
)

// Result is the outcome of one decision.
type Result struct {
	Next    protocol.State
	Fields  map[string]string
	Replies []string
	Effect  Effect
	// Healed is set when the incoming state was outside the enumeration
	// and the conversation was restarted. Callers should log it.
	Healed bool
}

// minDescriptionLen is the strict lower bound for problem descriptions:
// exactly this many characters is still rejected.
const minDescriptionLen = 20

// Engine decides dialogue transitions against a configurable problem-type
// category table.
type Engine struct {
	categories map[string]string
}

// New creates an engine. A nil or empty table falls back to
// DefaultCategories.
func New(categories map[string]string) *Engine {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return &Engine{categories: categories}
}

// Decide processes one inbound text. It never mutates the fields map it is
// given; identical inputs always produce identical results.
func (e *Engine) Decide(state protocol.State, fields map[string]string, text string) Result {
	text = strings.TrimSpace(text)
	next := maps.Clone(fields)
	if next == nil {
		next = map[string]string{}
	}

	switch state {
	case protocol.StateInitial:
		return Result{
			Next:   protocol.StateWaitingStart,
			Fields: next,
			Replies: []string{
				msgWelcome1,
				msgWelcome2,
				msgWelcome3,
				msgWelcome4,
			},
		}

	case protocol.StateWaitingStart:
		if strings.EqualFold(text, "ok") {
			return Result{
				Next:    protocol.StateWaitingProblemType,
				Fields:  next,
				Replies: []string{menuText(e.categories)},
			}
		}
		return reprompt(state, next, msgOkToContinue)

	case protocol.StateWaitingProblemType:
		label, ok := e.categories[text]
		if !ok {
			return reprompt(state, next, msgTypeRange)
		}
		next[protocol.FieldProblemType] = label
		return Result{
			Next:    protocol.StateWaitingProblemDescription,
			Fields:  next,
			Replies: []string{msgTypeNoted, msgAskDescribe},
		}

	case protocol.StateWaitingProblemDescription:
		if utf8.RuneCountInString(text) <= minDescriptionLen {
			return reprompt(state, next, msgDescTooShort)
		}
		next[protocol.FieldProblemDescription] = text
		return Result{
			Next:    protocol.StateWaitingPersonalInfoOK,
			Fields:  next,
			Replies: []string{msgProblemNoted, msgAskPersonalOK},
		}

	case protocol.StateWaitingPersonalInfoOK:
		if strings.EqualFold(text, "ok") {
			return Result{
				Next:    protocol.StateAskingName,
				Fields:  next,
				Replies: []string{msgAskName},
			}
		}
		return reprompt(state, next, msgOkToContinue)

	case protocol.StateAskingName:
		return e.collect(state, next, text, protocol.FieldName,
			protocol.StateAskingSector, msgAskSector)

	case protocol.StateAskingSector:
		return e.collect(state, next, text, protocol.FieldSector,
			protocol.StateAskingCostCenter, msgAskCostCenter)

	case protocol.StateAskingCostCenter:
		return e.collect(state, next, text, protocol.FieldCostCenter,
			protocol.StateAskingPhone, msgAskPhone)

	case protocol.StateAskingPhone:
		return e.collect(state, next, text, protocol.FieldPhone,
			protocol.StateAskingEmail, msgAskEmail)

	case protocol.StateAskingEmail:
		return e.collect(state, next, text, protocol.FieldEmail,
			protocol.StateAskingPatrimony, msgAskPatrimony)

	case protocol.StateAskingPatrimony:
		if text == "" {
			return reprompt(state, next, msgAskPatrimony)
		}
		next[protocol.FieldPatrimony] = text
		return Result{
			Next:   protocol.StateWaitingConfirmation,
			Fields: next,
			Replies: []string{
				msgGenerating,
				confirmationText(next),
				msgAskConfirm,
			},
		}

	case protocol.StateWaitingConfirmation:
		switch strings.ToLower(text) {
		case "sim":
			return Result{
				Next:    protocol.StateInitial,
				Fields:  map[string]string{},
				Replies: []string{msgClosed},
				Effect:  EffectFinalize,
			}
		case "não", "nao":
			return Result{
				Next:    protocol.StateWaitingRestartChoice,
				Fields:  next,
				Replies: []string{msgRestartMenu},
			}
		}
		return reprompt(state, next, msgConfirmYesNo)

	case protocol.StateWaitingRestartChoice:
		// Collected answers survive the restart on purpose: the user is
		// redoing part of the flow, not starting over.
		switch text {
		case "1":
			return Result{
				Next:    protocol.StateWaitingProblemType,
				Fields:  next,
				Replies: []string{menuText(e.categories)},
			}
		case "2":
			return Result{
				Next:    protocol.StateWaitingProblemDescription,
				Fields:  next,
				Replies: []string{msgRedoDescribe},
			}
		case "3":
			return Result{
				Next:    protocol.StateAskingName,
				Fields:  next,
				Replies: []string{msgAskName},
			}
		}
		return reprompt(state, next, msgRestartRange)
	}

	// Persisted state outside the enumeration: restart the conversation
	// and discard prior answers. The caller logs the anomaly.
	return Result{
		Next:    protocol.StateWaitingStart,
		Fields:  map[string]string{},
		Replies: []string{msgWelcomeShort},
		Healed:  true,
	}
}

// collect stores one free-text answer and asks the next question. Empty
// input re-asks the current question.
func (e *Engine) collect(state protocol.State, fields map[string]string, text, field string, nextState protocol.State, nextQuestion string) Result {
	if text == "" {
		return reprompt(state, fields, questionFor(state))
	}
	fields[field] = text
	return Result{
		Next:    nextState,
		Fields:  fields,
		Replies: []string{nextQuestion},
	}
}

func reprompt(state protocol.State, fields map[string]string, reply string) Result {
	return Result{Next: state, Fields: fields, Replies: []string{reply}}
}

func questionFor(state protocol.State) string {
	switch state {
	case protocol.StateAskingName:
		return msgAskName
	case protocol.StateAskingSector:
		return msgAskSector
	case protocol.StateAskingCostCenter:
		return msgAskCostCenter
	case protocol.StateAskingPhone:
		return msgAskPhone
	case protocol.StateAskingEmail:
		return msgAskEmail
	default:
		return msgAskPatrimony
	}
}
