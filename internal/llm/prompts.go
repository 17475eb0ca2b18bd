package llm

import (
	"fmt"
	"strings"

	"github.com/coachly/interviewd/internal/session"
)

const (
	interviewerSystem = "You are an expert interviewer. Ask one thoughtful interview question at a time based on the role and seniority."

	evaluatorSystem = "You are an expert evaluator. Score the candidate's answer on clarity, conciseness, confidence, and technical depth (0-10)." +
		" Provide an overall score (0-10) and a brief bullet feedback and 2-3 concrete suggestions."

	feedbackSystem = "You are a coach. Summarize strengths and areas to improve in a friendly tone. Give one short tip to improve next answer."

	summarySystem = "You are a coach wrapping up a mock interview. Write one short encouraging closing note based on the session statistics."
)

func questionPrompt(role, seniority string, count int) string {
	return fmt.Sprintf("Role: %s\nSeniority: %s\nGenerate %d concise interview questions as a bullet list without numbering.", role, seniority, count)
}

func evaluationPrompt(question, answer string) string {
	return "Evaluate the following answer to the interview question. Return JSON with keys: " +
		"clarity, conciseness, confidence, technical_depth, overall, feedback, suggestions.\n\n" +
		fmt.Sprintf("Question: %s\nAnswer: %s\n", question, answer) +
		"Respond with ONLY valid JSON."
}

func feedbackPrompt(ev session.Evaluation) string {
	return "Given the following evaluation, produce a short friendly summary with one actionable tip.\n\n" +
		fmt.Sprintf("Evaluation: clarity=%.1f conciseness=%.1f confidence=%.1f technical_depth=%.1f overall=%.1f\nFeedback: %s\nSuggestions: %s",
			ev.Clarity, ev.Conciseness, ev.Confidence, ev.TechnicalDepth, ev.Overall, ev.Feedback, ev.Suggestions)
}

func summaryPrompt(stats string) string {
	return "Session statistics:\n" + strings.TrimSpace(stats) + "\n\nWrite one short closing note for the candidate."
}
