package studio

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

type ActionKind string

const (
	ActionRegenerateDraft         ActionKind = "regenerate_draft"
	ActionRegenerateIllustrations ActionKind = "regenerate_illustrations"
	ActionPopulate                ActionKind = "populate"
	ActionFinalize                ActionKind = "finalize"
	ActionAskAI                   ActionKind = "ask_ai"
)

// Action is a studio action requested by the client. Exactly one variant is set
// and matches Kind.
type Action struct {
	Kind ActionKind

	RegenerateDraft         *RegenerateDraftAction
	RegenerateIllustrations *RegenerateIllustrationsAction
	Populate                *PopulateAction
	Finalize                *FinalizeAction
	AskAI                   *AskAIAction
}

type RegenerateDraftAction struct {
	Answers []Answer `json:"answers"`
}

type RegenerateIllustrationsAction struct{}

type PopulateAction struct {
	Override bool `json:"override,omitempty"`
}

type FinalizeAction struct{}

type AskAIAction struct {
	Prompt string    `json:"prompt"`
	NodeID uuid.UUID `json:"node_id"`
}

type actionEnvelope struct {
	Type    ActionKind      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseAction decodes {"type": ..., "payload": {...}} into an Action.
func ParseAction(raw []byte) (Action, error) {
	var env actionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Action{}, Errorf(CodeInvalidInput, "invalid action: %v", err)
	}
	payload := env.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	a := Action{Kind: env.Type}
	var target any
	switch env.Type {
	case ActionRegenerateDraft:
		a.RegenerateDraft = &RegenerateDraftAction{}
		target = a.RegenerateDraft
	case ActionRegenerateIllustrations:
		a.RegenerateIllustrations = &RegenerateIllustrationsAction{}
		target = a.RegenerateIllustrations
	case ActionPopulate:
		a.Populate = &PopulateAction{}
		target = a.Populate
	case ActionFinalize:
		a.Finalize = &FinalizeAction{}
		target = a.Finalize
	case ActionAskAI:
		a.AskAI = &AskAIAction{}
		target = a.AskAI
	default:
		return Action{}, Errorf(CodeInvalidInput, "unknown action type %q", env.Type)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return Action{}, Errorf(CodeInvalidInput, "invalid %s payload: %v", env.Type, err)
	}
	return a, a.Validate()
}

func (a Action) Validate() error {
	set := 0
	for _, ok := range []bool{
		a.RegenerateDraft != nil,
		a.RegenerateIllustrations != nil,
		a.Populate != nil,
		a.Finalize != nil,
		a.AskAI != nil,
	} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return Errorf(CodeInvalidInput, "action must carry exactly one variant, got %d", set)
	}
	switch a.Kind {
	case ActionRegenerateDraft:
		if a.RegenerateDraft == nil {
			return Errorf(CodeInvalidInput, "regenerate_draft payload missing")
		}
	case ActionRegenerateIllustrations:
		if a.RegenerateIllustrations == nil {
			return Errorf(CodeInvalidInput, "regenerate_illustrations payload missing")
		}
	case ActionPopulate:
		if a.Populate == nil {
			return Errorf(CodeInvalidInput, "populate payload missing")
		}
	case ActionFinalize:
		if a.Finalize == nil {
			return Errorf(CodeInvalidInput, "finalize payload missing")
		}
	case ActionAskAI:
		if a.AskAI == nil {
			return Errorf(CodeInvalidInput, "ask_ai payload missing")
		}
		if strings.TrimSpace(a.AskAI.Prompt) == "" {
			return Errorf(CodeInvalidInput, "ask_ai prompt is required")
		}
		if a.AskAI.NodeID == uuid.Nil {
			return Errorf(CodeInvalidInput, "ask_ai node_id is required")
		}
	default:
		return Errorf(CodeInvalidInput, "unhandled action kind %q", a.Kind)
	}
	return nil
}
