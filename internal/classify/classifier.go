// Package classify implements the rule evaluator and classifier.
// A detection signal is matched against the catalog, detection rules are
// fired, and a classification result is produced. Classification is a total
// function: it always returns a result, falling back to a generic
// classification when no typology matches.
package classify

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ActivityGetter returns the number of risk entities recorded for a subject
// within a lookback window. It backs the prior_count condition variable.
type ActivityGetter func(ctx context.Context, tenantID, subjectID string, windowDays int) (int64, error)

// Options tunes classifier behavior.
type Options struct {
	// DefaultSLAHours applies when a matched entry declares no SLA.
	DefaultSLAHours int

	// GenericSLAHours applies to generic fallback classifications.
	GenericSLAHours int

	// ActivityWindowDays is the lookback for the prior_count variable.
	ActivityWindowDays int
}

// Classifier matches detection signals against the catalog.
type Classifier struct {
	mu         sync.RWMutex
	catalog    *catalog.Catalog
	env        *cel.Env
	conditions map[string]cel.Program // key: entryID + "/" + ruleID
	activity   ActivityGetter
	opts       Options
}

// defaultTeams maps a source tag to the fallback team used when no catalog
// entry matches.
var defaultTeams = map[domain.SourceTag]string{
	domain.SourceCyber:       "cyber-forensics",
	domain.SourceAML:         "financial-crimes",
	domain.SourceDocumentary: "document-review",
	domain.SourceBehavioral:  "behavioral-analytics",
}

const (
	// fallbackTeam handles signals from unknown source tags.
	fallbackTeam = "fraud-triage"

	// fallbackEstimatedHours is the generic investigation estimate.
	fallbackEstimatedHours = 24
)

// New creates a classifier over the given catalog.
func New(cat *catalog.Catalog, activity ActivityGetter, opts Options) (*Classifier, error) {
	if opts.DefaultSLAHours <= 0 {
		opts.DefaultSLAHours = 72
	}
	if opts.GenericSLAHours <= 0 {
		opts.GenericSLAHours = 48
	}
	if opts.ActivityWindowDays <= 0 {
		opts.ActivityWindowDays = 30
	}

	// CEL environment with the detection signal variables. The variable set
	// is fixed: rule conditions are bounded expressions, not a general
	// scripting surface.
	env, err := cel.NewEnv(
		cel.Variable("score", cel.DoubleType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("district", cel.StringType),
		cel.Variable("context", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("finding_codes", cel.ListType(cel.StringType)),
		cel.Variable("prior_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Classifier{
		catalog:    cat,
		env:        env,
		conditions: make(map[string]cel.Program),
		activity:   activity,
		opts:       opts,
	}, nil
}

// ValidateCondition compiles a rule condition without loading it.
func (c *Classifier) ValidateCondition(expr string) error {
	if expr == "" {
		return nil
	}
	_, err := c.compileCondition(expr)
	return err
}

// LoadConditions compiles the CEL conditions of all loaded catalog entries.
// Called after every catalog load or reload.
func (c *Classifier) LoadConditions(entries []*domain.CatalogEntry) error {
	next := make(map[string]cel.Program)
	for _, e := range entries {
		for _, r := range e.Rules {
			if r.Condition == "" {
				continue
			}
			prog, err := c.compileCondition(r.Condition)
			if err != nil {
				return fmt.Errorf("entry %s rule %s: %w", e.ID, r.ID, err)
			}
			next[conditionKey(e.ID, r.ID)] = prog
		}
	}

	c.mu.Lock()
	c.conditions = next
	c.mu.Unlock()
	return nil
}

// ConditionCount returns the number of compiled rule conditions.
func (c *Classifier) ConditionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conditions)
}

// Classify matches a detection against the catalog and returns a result.
// It never fails: when no entry matches, a generic fallback is produced.
func (c *Classifier) Classify(ctx context.Context, det *domain.Detection) *domain.ClassificationResult {
	now := time.Now().UTC()

	activation := c.buildActivation(ctx, det)
	candidates := c.catalog.Candidates(det.Source, det.District)

	if len(candidates) == 0 {
		return c.genericResult(det, now)
	}

	// Evaluate every candidate; keep the one with the highest resulting
	// confidence. Candidates arrive sorted by id, and the strict > below
	// breaks ties toward the lowest catalog id for reproducibility.
	var (
		best      *domain.CatalogEntry
		bestConf  = -1.0
		bestRules []string
	)
	for _, entry := range candidates {
		triggered := c.evaluateRules(entry, det, activation)

		conf := det.Confidence * 0.8
		if len(triggered) > 0 {
			conf = math.Min(1, det.Confidence+0.1*float64(len(triggered)))
		}

		if conf > bestConf {
			best = entry
			bestConf = conf
			bestRules = triggered
		}
	}

	level := domain.RiskLevelFromScore(det.Score)
	impact := level
	if det.Source == domain.SourceCyber || det.Source == domain.SourceAML {
		impact = level.Bump()
	}

	return &domain.ClassificationResult{
		ID:                 uuid.New().String(),
		TenantID:           det.TenantID,
		DetectionID:        det.ID,
		CatalogID:          best.ID,
		Confidence:         bestConf,
		Score:              det.Score,
		TriggeredRules:     bestRules,
		RiskLevel:          level,
		BusinessImpact:     impact,
		Team:               c.entryTeam(best, bestRules, det.Source),
		EstimatedHours:     entryEstimatedHours(best),
		EscalationRequired: c.escalationRequired(best, bestRules, det.Score),
		SLADeadline:        now.Add(time.Duration(entrySLAHours(best, c.opts.DefaultSLAHours)) * time.Hour),
		ClassifiedAt:       now,
	}
}

// evaluateRules returns the ids of the entry's rules triggered by the signal.
func (c *Classifier) evaluateRules(entry *domain.CatalogEntry, det *domain.Detection, activation map[string]any) []string {
	var triggered []string
	for i := range entry.Rules {
		r := &entry.Rules[i]
		if !r.AppliesTo(det.Context) {
			continue
		}
		if det.Score < r.Threshold || det.Confidence < r.RequiredConfidence {
			continue
		}
		if !c.conditionHolds(entry.ID, r.ID, activation) {
			continue
		}
		triggered = append(triggered, r.ID)
	}
	return triggered
}

// conditionHolds evaluates a rule's optional CEL condition.
// A missing condition always holds; an evaluation error never does.
func (c *Classifier) conditionHolds(entryID, ruleID string, activation map[string]any) bool {
	c.mu.RLock()
	prog, ok := c.conditions[conditionKey(entryID, ruleID)]
	c.mu.RUnlock()

	if !ok {
		return true
	}

	out, _, err := prog.Eval(activation)
	if err != nil {
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}

// buildActivation prepares the CEL variables for one detection.
func (c *Classifier) buildActivation(ctx context.Context, det *domain.Detection) map[string]any {
	var priorCount int64
	if c.activity != nil && det.SubjectID != "" {
		count, err := c.activity(ctx, det.TenantID, det.SubjectID, c.opts.ActivityWindowDays)
		if err == nil {
			priorCount = count
		}
	}

	codes := det.FindingCodes
	if codes == nil {
		codes = []string{}
	}

	return map[string]any{
		"score":         det.Score,
		"confidence":    det.Confidence,
		"district":      det.District,
		"context":       det.Context,
		"amount":        det.Amount,
		"finding_codes": codes,
		"prior_count":   priorCount,
	}
}

// genericResult builds the fallback classification for unmatched signals.
func (c *Classifier) genericResult(det *domain.Detection, now time.Time) *domain.ClassificationResult {
	level := domain.RiskLevelFromScore(det.Score)
	impact := level
	if det.Source == domain.SourceCyber || det.Source == domain.SourceAML {
		impact = level.Bump()
	}

	team, ok := defaultTeams[det.Source]
	if !ok {
		team = fallbackTeam
	}

	return &domain.ClassificationResult{
		ID:             uuid.New().String(),
		TenantID:       det.TenantID,
		DetectionID:    det.ID,
		CatalogID:      domain.GenericCatalogID,
		Confidence:     det.Confidence * 0.5,
		Score:          det.Score,
		RiskLevel:      level,
		BusinessImpact: impact,
		Team:           team,
		EstimatedHours: fallbackEstimatedHours,
		SLADeadline:    now.Add(time.Duration(c.opts.GenericSLAHours) * time.Hour),
		ClassifiedAt:   now,
	}
}

// entryTeam picks the team of the first triggered rule, falling back to the
// source-tag default when nothing triggered.
func (c *Classifier) entryTeam(entry *domain.CatalogEntry, triggered []string, source domain.SourceTag) string {
	if len(triggered) > 0 {
		for i := range entry.Rules {
			if entry.Rules[i].ID == triggered[0] && entry.Rules[i].Team != "" {
				return entry.Rules[i].Team
			}
		}
	}
	for i := range entry.Rules {
		if entry.Rules[i].Team != "" {
			return entry.Rules[i].Team
		}
	}
	if team, ok := defaultTeams[source]; ok {
		return team
	}
	return fallbackTeam
}

// escalationRequired reports whether any triggered rule's escalation score
// was reached by the signal.
func (c *Classifier) escalationRequired(entry *domain.CatalogEntry, triggered []string, score float64) bool {
	for _, id := range triggered {
		for i := range entry.Rules {
			if entry.Rules[i].ID == id && entry.Rules[i].EscalationScore <= score {
				return true
			}
		}
	}
	return false
}

func entryEstimatedHours(entry *domain.CatalogEntry) float64 {
	if entry.Metrics.AvgDurationHours > 0 {
		return entry.Metrics.AvgDurationHours
	}
	return fallbackEstimatedHours
}

func entrySLAHours(entry *domain.CatalogEntry, fallback int) int {
	if entry.SLAHours > 0 {
		return entry.SLAHours
	}
	return fallback
}

func conditionKey(entryID, ruleID string) string {
	return entryID + "/" + ruleID
}

func (c *Classifier) compileCondition(expr string) (cel.Program, error) {
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile condition: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("condition must return bool, got %s", ast.OutputType())
	}

	return c.env.Program(ast)
}

// Close clears compiled conditions.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conditions = make(map[string]cel.Program)
	return nil
}
