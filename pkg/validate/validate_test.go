package validate

import (
	"math"
	"reflect"
	"testing"
)

func TestCombineStatus(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name          string
		primary       float64
		secondary     float64
		wantStatus    Status
		wantConsensus float64
	}{
		// 0.6*1.0 + 0.4*1.0 = 1.0 >= 0.85
		{"both perfect", 1.0, 1.0, StatusVerified, 1.0},
		// 0.6*0.85 + 0.4*0.85 = 0.85, exactly at the threshold
		{"threshold boundary", 0.85, 0.85, StatusVerified, 0.85},
		// 0.6*0.8 + 0.4*0.8 = 0.80 < 0.85, but both sides at the floor
		{"agreement without consensus", 0.8, 0.8, StatusPassed, 0.80},
		// 0.6*0.9 + 0.4*0.6 = 0.78 < 0.85, secondary below the floor
		{"secondary too low", 0.9, 0.6, StatusFailed, 0.78},
		// 0.6*0.5 + 0.4*1.0 = 0.70 < 0.85, primary below the floor
		{"primary too low", 0.5, 1.0, StatusFailed, 0.70},
		// out-of-range inputs are clamped before weighing
		{"clamped inputs", 1.7, -0.3, StatusFailed, 0.60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Combine(Assessment{Score: tt.primary}, Assessment{Score: tt.secondary})
			if got.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tt.wantStatus)
			}
			if math.Abs(got.Consensus-tt.wantConsensus) > 1e-9 {
				t.Errorf("consensus = %v, want %v", got.Consensus, tt.wantConsensus)
			}
		})
	}
}

func TestCombineCollectsIssues(t *testing.T) {
	v := NewValidator()

	got := v.Combine(
		Assessment{Score: 0.5, Issues: []string{"missing field: source"}},
		Assessment{Score: 1.0},
	)

	if got.Accepted() {
		t.Fatalf("verdict with a primary issue should fail, got %q", got.Status)
	}
	want := []string{"missing field: source"}
	if !reflect.DeepEqual(got.Issues, want) {
		t.Errorf("issues = %v, want %v", got.Issues, want)
	}
}

func TestSingleIssueAlwaysRejects(t *testing.T) {
	// One finding drops the issue-driven side to 0.5. Even a perfect partner
	// cannot lift consensus past 0.8, and 0.5 is under the agreement floor,
	// so a single finding on either side always rejects.
	v := NewValidator()

	flagged := ScoreIssues([]string{"quality_score out of range"})
	clean := ScoreIssues(nil)

	if got := v.Combine(flagged, clean); got.Accepted() {
		t.Errorf("primary issue: status = %q, want %q", got.Status, StatusFailed)
	}
	if got := v.Combine(clean, flagged); got.Accepted() {
		t.Errorf("secondary issue: status = %q, want %q", got.Status, StatusFailed)
	}
}

func TestScoreIssues(t *testing.T) {
	tests := []struct {
		name   string
		issues []string
		want   float64
	}{
		{"clean", nil, 1.0},
		{"one issue", []string{"a"}, 0.5},
		{"two issues", []string{"a", "b"}, 0.0},
		{"floored", []string{"a", "b", "c"}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreIssues(tt.issues).Score; got != tt.want {
				t.Errorf("ScoreIssues(%d issues).Score = %v, want %v", len(tt.issues), got, tt.want)
			}
		})
	}
}

func TestVerdictAccepted(t *testing.T) {
	if !(Verdict{Status: StatusVerified}).Accepted() {
		t.Error("verified verdict should be accepted")
	}
	if !(Verdict{Status: StatusPassed}).Accepted() {
		t.Error("passed verdict should be accepted")
	}
	if (Verdict{Status: StatusFailed}).Accepted() {
		t.Error("failed verdict should not be accepted")
	}
}
