// File path: internal/similarity/bonus.go
package similarity

import (
	"strings"

	"github.com/linkforge/linkforge/internal/corpus"
)

// Structural bonus weights. The total never exceeds maxBonus so the bonus
// reorders near-ties without overriding the similarity signal.
const (
	sharedClusterBonus = 0.03
	hubOrPriorityBonus = 0.02
	sharedLanguage     = 0.01
	maxBonus           = 0.06
)

// StructuralBonus rewards targets that share the source's URL cluster, carry
// hub or priority status, or share the source's language.
func StructuralBonus(source, target corpus.Page, stats *corpus.Stats) float64 {
	bonus := 0.0
	if prefix := corpus.PathPrefix(source.URL); prefix != "" && prefix == corpus.PathPrefix(target.URL) {
		bonus += sharedClusterBonus
	}
	if stats != nil {
		if _, hub := stats.HubPageIDs[target.ID]; hub || stats.IsPriority(target) {
			bonus += hubOrPriorityBonus
		}
	}
	if lang := strings.TrimSpace(source.Language); lang != "" && strings.EqualFold(lang, target.Language) {
		bonus += sharedLanguage
	}
	if bonus > maxBonus {
		bonus = maxBonus
	}
	return bonus
}
