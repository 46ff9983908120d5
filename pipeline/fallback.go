package pipeline

import "github.com/hupe1980/convopipe/core"

// Fixed, PII-free templates used whenever the composer cannot trust the
// backend. Index 0 is always a safe choice.
var fallbackTemplates = []string{
	"Desculpe, não consegui entender muito bem. Pode reformular, por favor?",
	"Só para confirmar: pode me dar mais detalhes sobre o que você precisa?",
	"Posso ajudar com informações sobre nossos serviços. O que você gostaria de saber?",
}

// Confirmation-first templates used when the state selection was not
// accepted: clarification before forward progress.
var clarifyTemplates = []string{
	"Só para confirmar: é sobre isso mesmo que você quer falar?",
	"Antes de continuar, pode confirmar o que você precisa exatamente?",
	"Quer seguir com esse assunto ou prefere falar de outra coisa?",
}

// selectionFallback is the deterministic stage-one result: never accepted,
// zero confidence, state held, generic confirmation hint.
func selectionFallback(conv *core.Conversation, status core.StageStatus) core.StateSelection {
	if status == "" {
		status = core.StatusNeedsClarification
	}
	return core.StateSelection{
		Accepted:     false,
		Confidence:   0,
		UsedFallback: true,
		CurrentState: conv.CurrentState,
		TargetState:  conv.CurrentState,
		Status:       status,
		ResponseHint: hintFor(status),
	}
}

// planFallback is the deterministic stage-two result: exactly three fixed,
// PII-free candidates with index 0 chosen. The floor (>=3 candidates,
// PII-free, safe index 0) holds unconditionally here.
func planFallback(sel core.StateSelection) core.ResponsePlan {
	templates := fallbackTemplates
	if !sel.Accepted {
		templates = clarifyTemplates
	}
	candidates := make([]core.Candidate, len(templates))
	for i, t := range templates {
		candidates[i] = core.Candidate{Text: t}
	}
	return core.ResponsePlan{
		Accepted:     true,
		Confidence:   0,
		UsedFallback: true,
		Candidates:   candidates,
		ChosenIndex:  0,
	}
}

// decisionFallback is the deterministic stage-three result: no state
// transition, the composer's chosen candidate, plain text shape.
func decisionFallback(sel core.StateSelection, plan core.ResponsePlan) core.OutboundDecision {
	return core.OutboundDecision{
		ApplyStateTransition: false,
		TargetState:          sel.CurrentState,
		SelectedContentRef:   plan.ChosenIndex,
		ContentShape:         core.ShapeText,
		Reason:               "deterministic fallback: backend result unavailable or out of contract",
		Confidence:           0,
		UsedFallback:         true,
	}
}
