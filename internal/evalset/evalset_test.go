package evalset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/opro/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "set.json", `[
		{"question": "What is 2+2?", "gold_answer": 4},
		{"question": "What is 10/4?", "gold_answer": 2.5}
	]`)

	items, err := Load(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "What is 2+2?", items[0].Question)
	assert.Equal(t, 2.5, items[1].GoldAnswer)
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "set.csv", "question,gold_answer\nWhat is 2+2?,4\nWhat is 3*3?,9\n")

	items, err := Load(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 9.0, items[1].GoldAnswer)
}

func TestLoadCSVColumnOrder(t *testing.T) {
	path := writeFile(t, "set.csv", "gold_answer,question\n4,What is 2+2?\n")

	items, err := Load(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "What is 2+2?", items[0].Question)
	assert.Equal(t, 4.0, items[0].GoldAnswer)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "set.yaml", `
- question: What is 2+2?
  gold_answer: 4
- question: What is 7-5?
  gold_answer: 2
`)

	items, err := Load(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "What is 7-5?", items[1].Question)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, "set.txt", "whatever")

	_, err := Load(path)
	assert.ErrorContains(t, err, "unsupported evaluation set format")
}

func TestLoadRejectsEmptySet(t *testing.T) {
	path := writeFile(t, "set.json", `[]`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "empty")
}

func TestLoadRejectsBadCSV(t *testing.T) {
	cases := map[string]string{
		"missing header":     "q,a\nWhat is 2+2?,4\n",
		"non-numeric answer": "question,gold_answer\nWhat is 2+2?,four\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "set.csv", content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	err := Validate([]domain.EvalItem{{Question: "  ", GoldAnswer: 1}})
	assert.ErrorContains(t, err, "empty question")

	err = Validate([]domain.EvalItem{{Question: "ok", GoldAnswer: 1}})
	assert.NoError(t, err)
}
