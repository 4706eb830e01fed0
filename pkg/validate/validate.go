// Package validate implements the consensus check used before any record is
// admitted into the pipeline. Two independent assessments of the same subject
// are combined into a weighted consensus score; the resulting verdict decides
// whether the subject is stored, and a failed verdict is a drop, never an
// error.
package validate

// Assessment is one reviewer's opinion of a subject: a score in [0, 1] and
// the findings that justify it.
type Assessment struct {
	Score  float64
	Issues []string
}

// Status classifies a combined verdict.
type Status string

const (
	// StatusVerified means the weighted consensus cleared the threshold.
	StatusVerified Status = "verified"
	// StatusPassed means consensus fell short but both assessments agreed
	// the subject is acceptable.
	StatusPassed Status = "passed"
	// StatusFailed means the subject must be dropped.
	StatusFailed Status = "failed"
)

// Verdict is the combined outcome of two assessments.
type Verdict struct {
	Status    Status
	Consensus float64
	Issues    []string
}

// Accepted reports whether the subject may proceed.
func (v Verdict) Accepted() bool {
	return v.Status != StatusFailed
}

// agreementFloor is the per-assessment score both sides must reach for a
// subject to pass when consensus misses the threshold.
const agreementFloor = 0.8

// issuePenalty is how much each finding costs an issue-driven assessment.
// A single finding pushes the score low enough that no weighting can rescue
// the subject.
const issuePenalty = 0.5

// Validator combines a primary and a secondary assessment into a verdict.
// The zero value is not usable; construct with NewValidator.
type Validator struct {
	PrimaryWeight   float64
	SecondaryWeight float64
	Threshold       float64
}

// NewValidator returns a Validator with the standard weighting: the primary
// assessment carries 60% of the consensus, the secondary 40%, and a subject
// is verified at 0.85 or above.
func NewValidator() *Validator {
	return &Validator{
		PrimaryWeight:   0.6,
		SecondaryWeight: 0.4,
		Threshold:       0.85,
	}
}

// Combine weighs the two assessments and returns the verdict. Scores are
// clamped into [0, 1] before weighing; issues from both sides are carried on
// the verdict in primary-then-secondary order.
func (v *Validator) Combine(primary, secondary Assessment) Verdict {
	p := clamp01(primary.Score)
	s := clamp01(secondary.Score)

	consensus := v.PrimaryWeight*p + v.SecondaryWeight*s

	var issues []string
	issues = append(issues, primary.Issues...)
	issues = append(issues, secondary.Issues...)

	status := StatusFailed
	switch {
	case consensus >= v.Threshold:
		status = StatusVerified
	case p >= agreementFloor && s >= agreementFloor:
		status = StatusPassed
	}

	return Verdict{Status: status, Consensus: consensus, Issues: issues}
}

// ScoreIssues converts a list of findings into an Assessment. A clean subject
// scores 1.0; each finding subtracts issuePenalty, floored at zero.
func ScoreIssues(issues []string) Assessment {
	score := 1.0 - issuePenalty*float64(len(issues))
	if score < 0 {
		score = 0
	}
	return Assessment{Score: score, Issues: issues}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
