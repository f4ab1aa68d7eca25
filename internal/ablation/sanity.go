package ablation

import (
	"fmt"

	"github.com/searchlab/ablate/internal/model"
)

// Finding flags a result whose metrics look suspicious. Findings mean the
// data looks wrong, not that the process failed; they are surfaced in run
// output, never raised as errors.
type Finding struct {
	QueryID    string `json:"query_id" yaml:"query_id"`
	Collection string `json:"collection" yaml:"collection"`
	Pattern    string `json:"pattern" yaml:"pattern"`
	Detail     string `json:"detail" yaml:"detail"`
}

// CheckResults scans a result set for patterns indicative of invalid
// metrics. The binary-metrics pattern (every score exactly 0 or 1 across
// the whole run) is checked last because it is a property of the set, not
// of one row. It is the signature of a scorer that collapsed into
// pass/fail instead of measuring.
func CheckResults(results []model.AblationResult) []Finding {
	var findings []Finding
	allBinary := len(results) > 0

	for _, r := range results {
		if r.ResultCount != r.TruePositives+r.FalsePositives {
			findings = append(findings, Finding{
				QueryID:    r.QueryID.String(),
				Collection: r.Collection,
				Pattern:    "count_mismatch",
				Detail: fmt.Sprintf("result_count %d != TP %d + FP %d",
					r.ResultCount, r.TruePositives, r.FalsePositives),
			})
		}
		if r.Precision == 1.0 && r.TruePositives == 0 && r.FalseNegatives > 0 {
			findings = append(findings, Finding{
				QueryID:    r.QueryID.String(),
				Collection: r.Collection,
				Pattern:    "perfect_precision_without_matches",
				Detail:     "precision=1.0 with zero true positives against non-empty truth",
			})
		}
		if r.F1 == 0.0 && r.FalseNegatives > 0 && r.TruePositives > 0 {
			findings = append(findings, Finding{
				QueryID:    r.QueryID.String(),
				Collection: r.Collection,
				Pattern:    "zero_f1_with_partial_matches",
				Detail: fmt.Sprintf("f1=0.0 despite %d true positives and %d false negatives",
					r.TruePositives, r.FalseNegatives),
			})
		}
		if isFractional(r.Precision) || isFractional(r.Recall) || isFractional(r.F1) {
			allBinary = false
		}
	}

	// A study where nothing ever scores strictly between 0 and 1 almost
	// certainly ran against degenerate truth data.
	if allBinary && len(results) >= 10 {
		findings = append(findings, Finding{
			Pattern: "binary_metrics",
			Detail:  fmt.Sprintf("all %d results have precision/recall/f1 of exactly 0.0 or 1.0", len(results)),
		})
	}
	return findings
}

func isFractional(v float64) bool {
	return v > 0.0 && v < 1.0
}
