package llm

import (
	"encoding/json"
	"strings"

	"github.com/coachly/interviewd/internal/session"
)

// parseQuestions extracts individual questions from a bullet-list
// completion. Numbering, bullets and fences are tolerated; very short
// lines are noise and dropped.
func parseQuestions(text string, max int) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, max)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-•* \t")
		if dot := strings.Index(line, ". "); dot >= 0 && dot <= 3 {
			if _, numbered := parseLeadingInt(line[:dot]); numbered {
				line = strings.TrimSpace(line[dot+2:])
			}
		}
		if len(line) <= 10 {
			continue
		}
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	if len(out) == 0 && strings.TrimSpace(text) != "" {
		out = append(out, strings.TrimSpace(text))
	}
	return out
}

func parseLeadingInt(s string) (int, bool) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, s != ""
}

const (
	rescueScore       = 5
	rescueSuggestions = "Provide more structure and examples."
	rescueFeedbackCap = 800
)

// parseEvaluation decodes the evaluator's JSON. A malformed completion is
// rescued into a default-valued evaluation carrying the raw text as
// feedback, so only total provider unavailability fails the activity.
func parseEvaluation(raw string) session.Evaluation {
	payload := extractJSON(raw)

	var decoded struct {
		Clarity        *float64 `json:"clarity"`
		Conciseness    *float64 `json:"conciseness"`
		Confidence     *float64 `json:"confidence"`
		TechnicalDepth *float64 `json:"technical_depth"`
		Overall        *float64 `json:"overall"`
		Feedback       string   `json:"feedback"`
		Suggestions    string   `json:"suggestions"`
	}
	if payload == "" || json.Unmarshal([]byte(payload), &decoded) != nil {
		feedback := strings.TrimSpace(raw)
		if len(feedback) > rescueFeedbackCap {
			feedback = feedback[:rescueFeedbackCap]
		}
		return session.Evaluation{
			Clarity:        rescueScore,
			Conciseness:    rescueScore,
			Confidence:     rescueScore,
			TechnicalDepth: rescueScore,
			Overall:        rescueScore,
			Feedback:       feedback,
			Suggestions:    rescueSuggestions,
		}
	}

	return session.Evaluation{
		Clarity:        scoreOrDefault(decoded.Clarity),
		Conciseness:    scoreOrDefault(decoded.Conciseness),
		Confidence:     scoreOrDefault(decoded.Confidence),
		TechnicalDepth: scoreOrDefault(decoded.TechnicalDepth),
		Overall:        scoreOrDefault(decoded.Overall),
		Feedback:       decoded.Feedback,
		Suggestions:    decoded.Suggestions,
	}
}

func scoreOrDefault(v *float64) float64 {
	if v == nil {
		return rescueScore
	}
	return *v
}

// extractJSON pulls the outermost object out of a completion that may be
// wrapped in markdown fences or surrounding prose.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
