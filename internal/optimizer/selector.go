package optimizer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xiaot623/opro/internal/domain"
)

// metaPromptExamples is how many worked examples each meta-prompt shows.
const metaPromptExamples = 3

// SelectTop picks the instructions shown to the generator as history.
// Duplicate texts collapse to their highest-scoring occurrence (ties keep
// the first), the survivors are ranked by score with creation time as the
// tie-break, and the best topX are returned in ascending score order.
// Listing the strongest entries last primes the generator to continue the
// upward trend.
func SelectTop(prompts []domain.Prompt, topX int) []domain.Prompt {
	index := make(map[string]int)
	var kept []domain.Prompt
	for _, p := range prompts {
		if p.Score == nil {
			continue
		}
		if i, ok := index[p.Text]; ok {
			if *p.Score > *kept[i].Score {
				kept[i] = p
			}
			continue
		}
		index[p.Text] = len(kept)
		kept = append(kept, p)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if *kept[i].Score != *kept[j].Score {
			return *kept[i].Score > *kept[j].Score
		}
		return kept[i].CreatedAt.Before(kept[j].CreatedAt)
	})
	if topX > 0 && len(kept) > topX {
		kept = kept[:topX]
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// SampleExamples draws up to metaPromptExamples evaluation items without
// replacement using the given sampler.
func SampleExamples(set []domain.EvalItem, sampler Sampler) []domain.EvalItem {
	n := metaPromptExamples
	if len(set) < n {
		n = len(set)
	}
	out := make([]domain.EvalItem, 0, n)
	for _, i := range sampler(len(set), n) {
		out = append(out, set[i])
	}
	return out
}

// BuildMetaPrompt renders the generation request for a new step: the
// scored history in ascending order (omitted entirely when empty), the
// sampled worked examples, and the closing ask for one new delimited
// instruction.
func BuildMetaPrompt(history []domain.Prompt, examples []domain.EvalItem) string {
	var b strings.Builder
	b.WriteString("Your task is to write one instruction that helps a language model solve the problems below.\n")

	if len(history) > 0 {
		b.WriteString("\nBelow are some previous instructions with their scores. They are arranged in ascending order, so later entries scored higher. The score ranges from 0 to 100.\n")
		for _, p := range history {
			fmt.Fprintf(&b, "\ntext:\n%s\nscore:\n%s\n", p.Text, formatScore(*p.Score))
		}
	}

	b.WriteString("\nBelow are some example problems. The instruction replaces " + InstructionStart + " in each problem.\n")
	for _, ex := range examples {
		fmt.Fprintf(&b, "\nQ: %s\nA: %s\nGround truth answer:\n%s\n", ex.Question, InstructionStart, formatAnswer(ex.GoldAnswer))
	}

	b.WriteString("\nWrite one new instruction that is different from the instructions above and would achieve a higher score than all of them. Keep it concise and generally applicable. Write the instruction between " + InstructionStart + " and " + InstructionEnd + ".\n")
	return b.String()
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatAnswer(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
