// Package synthesis answers evidence queries from ingested papers and keeps
// a versioned history of each synthesis.
package synthesis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/rules"
	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/textgen"
)

const (
	maxPapers       = 20
	candidatePapers = 500
	minPaperQuality = 40
)

const systemPrompt = `You are a clinical evidence reviewer for an occupational health network.
Answer using only the supplied studies. Reply with these labeled sections:
RECOMMENDATION: one actionable sentence
CONFIDENCE SCORE: a number from 0 to 100
RATIONALE: the evidence supporting the recommendation
IDENTIFIED RISKS: one risk per line, prefixed with "-"
CONSENSUS: strong, moderate, limited or conflicting`

// Store is the persistence the service needs.
type Store interface {
	store.PaperStore
	store.SynthesisStore
}

// Service creates and revises syntheses.
type Service struct {
	store Store
	gen   textgen.Completer
	now   func() time.Time
}

// NewService creates a Service.
func NewService(st Store, gen textgen.Completer) *Service {
	return &Service{store: st, gen: gen, now: func() time.Time { return time.Now().UTC() }}
}

// Synthesize answers query from the best matching recent papers and
// publishes the result as version 1. Returns nil when no paper matches.
func (s *Service) Synthesize(ctx context.Context, query, userID string) (*model.EvidenceSynthesis, error) {
	log := zap.L().With(zap.String("component", "synthesis"))

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, eris.New("synthesis: empty query")
	}

	candidates, err := s.store.ListPapers(ctx, store.PaperFilter{MinQuality: minPaperQuality, Limit: candidatePapers})
	if err != nil {
		return nil, eris.Wrap(err, "synthesis: list papers")
	}
	papers := SelectPapers(query, candidates, maxPapers)
	if len(papers) == 0 {
		log.Warn("no papers match query", zap.String("query", query))
		return nil, nil
	}

	comp, err := s.gen.Complete(ctx, textgen.Request{
		System: systemPrompt,
		User:   buildPrompt(query, papers),
		Phase:  "synthesis",
	})
	if err != nil {
		return nil, eris.Wrap(err, "synthesis: generate")
	}
	parsed := textgen.ParseStructured(comp.Text)
	if !parsed.Parsed {
		log.Warn("synthesis reply not structured, using truncated text", zap.String("query", query))
	}

	syn := &model.EvidenceSynthesis{
		Query:           query,
		Summary:         summarize(parsed),
		ConfidenceScore: parsed.ConfidenceScore,
		EvidenceQuality: model.QualityForConfidence(parsed.ConfidenceScore),
		ConsensusLevel:  consensusLevel(parsed),
		Recommendation:  parsed.Recommendation,
		Rationale:       parsed.Rationale,
		Risks:           parsed.Risks,
		CreatedBy:       userID,
		CreatedAt:       s.now(),
	}
	for _, p := range papers {
		syn.PaperIDs = append(syn.PaperIDs, p.ID)
	}

	if err := s.store.CreateSynthesis(ctx, syn); err != nil {
		return nil, eris.Wrap(err, "synthesis: create")
	}
	log.Info("synthesis created",
		zap.String("synthesis_id", syn.ID),
		zap.Int("papers", len(papers)),
		zap.Float64("confidence", syn.ConfidenceScore),
	)
	return syn, nil
}

// SelectPapers ranks papers by the number of query terms they contain, then
// by quality, and returns at most limit papers with at least one match.
func SelectPapers(query string, papers []model.ResearchPaper, limit int) []model.ResearchPaper {
	var terms []string
	for _, tok := range strings.Fields(rules.Normalize(query)) {
		tok = strings.Trim(tok, ".,;:!?\"'()")
		if len([]rune(tok)) > 3 {
			terms = append(terms, tok)
		}
	}
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		paper model.ResearchPaper
		hits  int
	}
	var matched []scored
	for _, p := range papers {
		text := rules.Normalize(p.Title + " " + p.Abstract + " " + p.PrimaryOutcome)
		hits := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				hits++
			}
		}
		if hits > 0 {
			matched = append(matched, scored{paper: p, hits: hits})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].hits != matched[j].hits {
			return matched[i].hits > matched[j].hits
		}
		return matched[i].paper.QualityScore > matched[j].paper.QualityScore
	})

	out := make([]model.ResearchPaper, 0, min(limit, len(matched)))
	for i := 0; i < len(matched) && i < limit; i++ {
		out = append(out, matched[i].paper)
	}
	return out
}

func buildPrompt(query string, papers []model.ResearchPaper) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nStudies:\n", query)
	for i, p := range papers {
		fmt.Fprintf(&b, "%d. %s", i+1, p.Title)
		if p.StudyType != "" {
			fmt.Fprintf(&b, " [%s", p.StudyType)
			if p.SampleSize > 0 {
				fmt.Fprintf(&b, ", n=%d", p.SampleSize)
			}
			b.WriteString("]")
		}
		b.WriteString(" quality " + strconv.FormatFloat(p.QualityScore, 'f', 0, 64) + "\n")
		if p.PrimaryOutcome != "" {
			fmt.Fprintf(&b, "   Primary outcome: %s\n", p.PrimaryOutcome)
		}
		if p.Abstract != "" {
			fmt.Fprintf(&b, "   %s\n", p.Abstract)
		}
	}
	return b.String()
}

func summarize(p textgen.Structured) string {
	if p.Rationale == "" {
		return p.Recommendation
	}
	return p.Recommendation + " " + p.Rationale
}

func consensusLevel(p textgen.Structured) string {
	if c := strings.ToLower(strings.TrimSpace(p.Consensus)); c != "" {
		return strings.Fields(c)[0]
	}
	switch model.QualityForConfidence(p.ConfidenceScore) {
	case model.EvidenceQualityStrong:
		return "strong"
	case model.EvidenceQualityModerate:
		return "moderate"
	default:
		return "limited"
	}
}
