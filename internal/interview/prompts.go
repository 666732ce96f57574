// internal/interview/prompts.go
package interview

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

type questionBand int

const (
	bandOpening questionBand = iota
	bandTransition
	bandLow  // ask for a concrete example
	bandMid  // ask for a measurable outcome
	bandHigh // ask for additional context
)

func bandFor(confidence float64) questionBand {
	switch {
	case confidence < 0.3:
		return bandLow
	case confidence < 0.6:
		return bandMid
	default:
		return bandHigh
	}
}

const questionSystemPrompt = `You are a scholarship advisor interviewing a student to surface evidence
the resume did not show. Ask exactly one short, encouraging question.
Return only the question text.`

const scoringSystemPrompt = `You evaluate how well an interview answer demonstrates a scholarship
criterion. Respond with JSON only: {"score": <float 0-1>, "evidence": "<one-sentence summary of the strongest evidence in the answer>"}.`

const narrativeSystemPrompt = `You write a first-person narrative on behalf of a scholarship applicant,
faithful to their own words from the interview. No headings, no bullet
points, 150-300 words.`

// generateQuestion produces the next question for a target criterion. The
// band steers the framing; generation failures fall back to canned phrasing
// so a flaky model call never stalls the interview.
func (m *Machine) generateQuestion(ctx context.Context, session *Session, target string, band questionBand) string {
	question, err := m.gen.Generate(ctx, questionSystemPrompt, m.buildQuestionPrompt(session, target, band))
	if err == nil && strings.TrimSpace(question) != "" {
		return strings.TrimSpace(question)
	}
	if err != nil {
		m.logger.Warn("question generation failed, using fallback", map[string]interface{}{
			"criterion": target,
			"error":     err.Error(),
		})
	}
	return fallbackQuestion(target, band)
}

func (m *Machine) buildQuestionPrompt(session *Session, target string, band questionBand) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Criterion to probe: %s\n", target)
	if session.Background != "" {
		fmt.Fprintf(&b, "Scholarship context: %s\n", session.Background)
	}

	switch band {
	case bandOpening:
		b.WriteString("This is the opening question of the interview.\n")
	case bandTransition:
		b.WriteString("The previous topic is settled; introduce this new topic naturally.\n")
	case bandLow:
		b.WriteString("The student has not yet given real evidence. Ask for one concrete example or story.\n")
	case bandMid:
		b.WriteString("There is some evidence. Ask for a measurable outcome or result.\n")
	case bandHigh:
		b.WriteString("Evidence is nearly sufficient. Ask for any additional context that rounds out the picture.\n")
	}

	if len(session.Evidence[target]) > 0 {
		fmt.Fprintf(&b, "Evidence gathered so far: %s\n", strings.Join(session.Evidence[target], "; "))
	}
	return b.String()
}

func (m *Machine) buildScoringPrompt(target, answer string) string {
	return fmt.Sprintf("Criterion: %s\n\nStudent answer:\n%s", target, answer)
}

func (m *Machine) buildNarrativePrompt(session *Session) string {
	var b strings.Builder
	b.WriteString("Write the applicant's narrative from this interview.\n\n")

	// Criteria ordered by weight so the synthesis leans on what matters most.
	ordered := make([]string, 0, len(session.Confidences))
	for criterion := range session.Confidences {
		ordered = append(ordered, criterion)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return session.Weights[ordered[i]] > session.Weights[ordered[j]]
	})

	b.WriteString("Criteria by importance, with confidence established:\n")
	for _, criterion := range ordered {
		fmt.Fprintf(&b, "- %s (weight %.2f, confidence %.2f)\n",
			criterion, session.Weights[criterion], session.Confidences[criterion])
		for _, ev := range session.Evidence[criterion] {
			fmt.Fprintf(&b, "  evidence: %s\n", ev)
		}
	}

	b.WriteString("\nFull interview transcript:\n")
	for _, turn := range session.History {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	return b.String()
}

func fallbackQuestion(target string, band questionBand) string {
	switch band {
	case bandLow:
		return fmt.Sprintf("Could you share a specific example that shows your %s?", strings.ToLower(target))
	case bandMid:
		return fmt.Sprintf("What measurable result came out of your work involving %s?", strings.ToLower(target))
	case bandHigh:
		return fmt.Sprintf("Is there anything else about your %s you would want the committee to know?", strings.ToLower(target))
	case bandTransition:
		return fmt.Sprintf("Thanks, that covers it well. Let's talk about %s next - can you tell me about your experience there?", strings.ToLower(target))
	default:
		return fmt.Sprintf("To start: can you tell me about your experience with %s?", strings.ToLower(target))
	}
}
