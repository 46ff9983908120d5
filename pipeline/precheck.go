package pipeline

import (
	"strings"

	"github.com/hupe1980/convopipe/core"
)

// preCheckCap is the confidence ceiling applied when a deterministic
// pre-check matches, keeping the result below the acceptance threshold
// regardless of what the backend returns.
const preCheckCap = 0.69

// Closing acknowledgements and explicit topic pivots, matched on the
// lower-cased message. Portuguese first (primary audience), English
// fallbacks included.
var (
	closingPhrases = []string{
		"obrigado", "obrigada", "valeu", "brigado",
		"tchau", "até mais", "era só isso", "era so isso",
		"thanks", "thank you", "bye",
	}
	pivotPhrases = []string{
		"outra coisa", "mudando de assunto", "na verdade quero",
		"esquece isso", "deixa pra lá", "deixa pra la",
		"another thing", "actually i want", "forget that",
	}
)

// preCheck runs the deterministic phrase match ahead of the backend call.
// It returns the zero status when nothing matched.
func preCheck(text string) core.StageStatus {
	lower := strings.ToLower(text)
	for _, p := range closingPhrases {
		if strings.Contains(lower, p) {
			return core.StatusNeedsClarification
		}
	}
	for _, p := range pivotPhrases {
		if strings.Contains(lower, p) {
			return core.StatusNewRequestDetected
		}
	}
	return ""
}

// hintFor maps a non-accepted selection onto the confirmation hint the
// composer must honor.
func hintFor(status core.StageStatus) string {
	switch status {
	case core.StatusNeedsClarification:
		return "Confirme com o cliente se o atendimento pode ser encerrado."
	case core.StatusNewRequestDetected:
		return "Confirme com o cliente qual é o novo assunto antes de prosseguir."
	default:
		return "Peça ao cliente uma confirmação explícita antes de avançar."
	}
}
