// internal/pipeline/stages.go
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"scholarship-pipeline/internal/common/errors"
	"scholarship-pipeline/internal/match"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// SourceFetcher resolves a scholarship or resume reference into raw text.
// Scraping and PDF parsing live behind this boundary.
type SourceFetcher interface {
	Fetch(ctx context.Context, ref string) (string, error)
}

const analysisSystemPrompt = `You analyze scholarship requirements for an application advisor. From the
scholarship description, extract the criteria the committee evaluates and
their relative importance. Respond with JSON only:
{"criteria": [{"name": "<criterion>", "weight": <float 0-1>}]}
Weights must reflect relative importance and should roughly sum to 1.`

const generationSystemPrompt = `You draft scholarship application materials for a student. Write a tailored
personal essay grounded strictly in the evidence provided; never invent
achievements. Return only the essay text.`

// criteriaSchema validates the shape of the model's criteria JSON before it
// enters the workflow state.
const criteriaSchema = `{
	"type": "object",
	"required": ["criteria"],
	"properties": {
		"criteria": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "weight"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"weight": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		}
	}
}`

// stageStart records workflow creation and hands off to ingestion.
func (o *Orchestrator) stageStart(ctx context.Context, st *WorkflowState) *WorkflowState {
	out := st.Clone()
	out.CurrentPhase = PhaseIngestScholarship
	out.UpdatedAt = time.Now().UTC()
	return out
}

// stageIngest serves both ingestion phases. The two sub-fetches have no
// ordering dependency and run concurrently; fields already set (a rerun
// after a crash) are left alone, and the resume is indexed into the
// knowledge base only on first fetch.
func (o *Orchestrator) stageIngest(ctx context.Context, st *WorkflowState) *WorkflowState {
	out := st.Clone()

	type fetchResult struct {
		text string
		err  error
	}
	var scholarship, resume *fetchResult
	var wg sync.WaitGroup

	if out.ScholarshipIntel == "" {
		scholarship = &fetchResult{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			scholarship.text, scholarship.err = o.fetcher.Fetch(ctx, out.ScholarshipRef)
		}()
	}
	if out.ResumeText == "" {
		resume = &fetchResult{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			resume.text, resume.err = o.fetcher.Fetch(ctx, out.ResumeRef)
		}()
	}
	wg.Wait()

	if scholarship != nil {
		if scholarship.err != nil {
			return st.Fail(st.CurrentPhase, string(errors.ErrCodeIngestionFailed),
				fmt.Sprintf("fetch scholarship: %v", scholarship.err))
		}
		out.ScholarshipIntel = scholarship.text
	}
	if resume != nil {
		if resume.err != nil {
			return st.Fail(st.CurrentPhase, string(errors.ErrCodeIngestionFailed),
				fmt.Sprintf("fetch resume: %v", resume.err))
		}
		out.ResumeText = resume.text

		fragments := splitFragments(out.ResumeText)
		if err := o.knowledge.Index(ctx, out.SessionID, fragments); err != nil {
			return st.Fail(st.CurrentPhase, string(errors.ErrCodeIngestionFailed),
				fmt.Sprintf("index resume fragments: %v", err))
		}
	}

	// The two ingestion phases stay distinct so each gets its own
	// checkpoint; the second pass finds its fields set and only advances.
	if st.CurrentPhase == PhaseIngestScholarship {
		out.CurrentPhase = PhaseIngestResume
	} else {
		out.CurrentPhase = PhaseAnalysis
	}
	out.UpdatedAt = time.Now().UTC()
	return out
}

// stageAnalysis derives the weighted-criteria map from the scholarship
// intelligence. The model's JSON is schema-validated before use and the
// weights are normalized to sum to 1.0.
func (o *Orchestrator) stageAnalysis(ctx context.Context, st *WorkflowState) *WorkflowState {
	if st.ScholarshipIntel == "" {
		return st.FailWith(PhaseAnalysis,
			errors.NewMissingUpstreamFieldError("scholarshipIntel", string(PhaseAnalysis)))
	}

	out := st.Clone()
	if len(out.Criteria) == 0 {
		raw, err := o.gen.Generate(ctx, analysisSystemPrompt, out.ScholarshipIntel)
		if err != nil {
			return st.Fail(PhaseAnalysis, string(errors.ErrCodeAnalysisFailed),
				fmt.Sprintf("criteria extraction: %v", err))
		}

		criteria, err := parseCriteria(raw)
		if err != nil {
			return st.FailWith(PhaseAnalysis, errors.NewCriteriaInvalidError(err.Error()))
		}
		out.Criteria = criteria
	}

	out.CurrentPhase = PhaseMatching
	out.UpdatedAt = time.Now().UTC()
	return out
}

// stageMatching runs the scoring gate and routes to interview or generation.
// This is the only conditional edge in the graph.
func (o *Orchestrator) stageMatching(ctx context.Context, st *WorkflowState) *WorkflowState {
	if len(st.Criteria) == 0 {
		return st.FailWith(PhaseMatching,
			errors.NewMissingUpstreamFieldError("criteria", string(PhaseMatching)))
	}

	out := st.Clone()
	evaluation, err := o.gate.Evaluate(ctx, out.Criteria, out.SessionID)
	if err != nil {
		return st.FailWith(PhaseMatching,
			errors.NewStageFailedError(string(PhaseMatching), fmt.Errorf("match evaluation: %w", err)))
	}

	out.MatchScore = evaluation.Score
	out.TriggerInterview = evaluation.TriggerInterview
	out.Gaps = evaluation.Gaps
	out.MatchDetails = evaluation.Details
	out.CurrentPhase = routeAfterMatching(out)
	out.UpdatedAt = time.Now().UTC()
	return out
}

// routeAfterMatching is the pure routing function for the graph's single
// branch point.
func routeAfterMatching(st *WorkflowState) Phase {
	if st.TriggerInterview {
		return PhaseInterview
	}
	return PhaseGeneration
}

// stageGeneration produces the tailored materials. Re-running on a state
// whose materials are already set only advances the phase, keeping retried
// resume calls idempotent.
func (o *Orchestrator) stageGeneration(ctx context.Context, st *WorkflowState) *WorkflowState {
	if st.ScholarshipIntel == "" {
		return st.FailWith(PhaseGeneration,
			errors.NewMissingUpstreamFieldError("scholarshipIntel", string(PhaseGeneration)))
	}
	if st.ResumeText == "" {
		return st.FailWith(PhaseGeneration,
			errors.NewMissingUpstreamFieldError("resumeText", string(PhaseGeneration)))
	}

	out := st.Clone()
	if out.Materials == "" {
		materials, err := o.gen.Generate(ctx, generationSystemPrompt, buildGenerationPrompt(out))
		if err != nil {
			return st.Fail(PhaseGeneration, string(errors.ErrCodeGenerationFailed),
				fmt.Sprintf("materials generation: %v", err))
		}
		out.Materials = strings.TrimSpace(materials)
	}

	out.CurrentPhase = PhaseComplete
	out.UpdatedAt = time.Now().UTC()
	return out
}

func buildGenerationPrompt(st *WorkflowState) string {
	var b strings.Builder
	b.WriteString("Scholarship requirements:\n")
	b.WriteString(st.ScholarshipIntel)
	b.WriteString("\n\nStudent resume:\n")
	b.WriteString(st.ResumeText)
	if st.InterviewNarrative != "" {
		b.WriteString("\n\nAdditional evidence from the student's interview, in their own words:\n")
		b.WriteString(st.InterviewNarrative)
	}
	if len(st.Criteria) > 0 {
		b.WriteString("\n\nCriteria the committee weighs most:\n")
		for _, cw := range st.Criteria {
			fmt.Fprintf(&b, "- %s (weight %.2f)\n", cw.Name, cw.Weight)
		}
	}
	return b.String()
}

// parseCriteria validates and normalizes the model's criteria JSON.
func parseCriteria(raw string) ([]match.CriterionWeight, error) {
	doc := extractJSON(raw)

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(criteriaSchema),
		gojsonschema.NewStringLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("criteria validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("criteria failed validation: %v", errs)
	}

	var criteria []match.CriterionWeight
	var total float64
	gjson.Get(doc, "criteria").ForEach(func(_, item gjson.Result) bool {
		criteria = append(criteria, match.CriterionWeight{
			Name:   item.Get("name").String(),
			Weight: item.Get("weight").Float(),
		})
		total += item.Get("weight").Float()
		return true
	})

	if total <= 0 {
		return nil, fmt.Errorf("criteria weights sum to zero")
	}
	for i := range criteria {
		criteria[i].Weight /= total
	}
	return criteria, nil
}

// extractJSON strips markdown fences the model sometimes wraps around JSON.
func extractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return trimmed[start : end+1]
		}
	}
	return trimmed
}

// splitFragments chunks resume text on blank lines for knowledge base
// indexing, dropping fragments too short to carry evidence.
func splitFragments(text string) []string {
	var fragments []string
	for _, part := range strings.Split(text, "\n\n") {
		part = strings.TrimSpace(part)
		if len(part) >= 20 {
			fragments = append(fragments, part)
		}
	}
	if len(fragments) == 0 && strings.TrimSpace(text) != "" {
		fragments = []string{strings.TrimSpace(text)}
	}
	return fragments
}
