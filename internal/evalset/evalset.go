// Package evalset loads evaluation sets from files. A set is an ordered
// sequence of question/gold-answer pairs, frozen into a session at creation.
package evalset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/opro/internal/domain"
)

// Load reads and validates an evaluation set from a JSON, CSV, or YAML file,
// dispatching on the file extension.
func Load(path string) ([]domain.EvalItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read evaluation set: %w", err)
	}

	var items []domain.EvalItem
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		items, err = parseJSON(data)
	case ".csv":
		items, err = parseCSV(data)
	case ".yaml", ".yml":
		items, err = parseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported evaluation set format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	if err := Validate(items); err != nil {
		return nil, err
	}
	return items, nil
}

// Validate checks that a set is usable: non-empty, no blank questions, all
// gold answers finite.
func Validate(items []domain.EvalItem) error {
	if len(items) == 0 {
		return fmt.Errorf("evaluation set is empty")
	}
	for i, item := range items {
		if strings.TrimSpace(item.Question) == "" {
			return fmt.Errorf("evaluation item %d has an empty question", i)
		}
		if math.IsNaN(item.GoldAnswer) || math.IsInf(item.GoldAnswer, 0) {
			return fmt.Errorf("evaluation item %d has a non-finite gold answer", i)
		}
	}
	return nil
}

func parseJSON(data []byte) ([]domain.EvalItem, error) {
	var items []domain.EvalItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func parseCSV(data []byte) ([]domain.EvalItem, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no rows")
	}

	questionCol, answerCol := -1, -1
	for i, col := range records[0] {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "question":
			questionCol = i
		case "gold_answer", "answer":
			answerCol = i
		}
	}
	if questionCol < 0 || answerCol < 0 {
		return nil, fmt.Errorf("header must contain question and gold_answer columns")
	}

	items := make([]domain.EvalItem, 0, len(records)-1)
	for i, rec := range records[1:] {
		if questionCol >= len(rec) || answerCol >= len(rec) {
			return nil, fmt.Errorf("row %d is missing columns", i+1)
		}
		gold, err := strconv.ParseFloat(strings.TrimSpace(rec[answerCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d has a non-numeric gold answer %q", i+1, rec[answerCol])
		}
		items = append(items, domain.EvalItem{Question: rec[questionCol], GoldAnswer: gold})
	}
	return items, nil
}

func parseYAML(data []byte) ([]domain.EvalItem, error) {
	var raw []struct {
		Question   string  `yaml:"question"`
		GoldAnswer float64 `yaml:"gold_answer"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	items := make([]domain.EvalItem, len(raw))
	for i, r := range raw {
		items[i] = domain.EvalItem{Question: r.Question, GoldAnswer: r.GoldAnswer}
	}
	return items, nil
}
