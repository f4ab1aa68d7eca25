package model

import (
	"time"

	"github.com/google/uuid"
)

// Metadata keys used by the orchestrator.
const (
	MetaGroup         = "group"   // "baseline", "ablated", or "cross"
	MetaRound         = "round"   // round number, when driven by a round plan
	MetaCombination   = "combination"
	MetaRawResults    = "raw_result_count" // set when scored count differs from returned rows
	MetaRelated       = "related_collections"
	MetaAblatedTarget = "ablated_collection" // for cross-impact rows: which combination was ablated
)

// AblationResult records one scored (query, collection) evaluation.
// Immutable once produced.
type AblationResult struct {
	QueryID        uuid.UUID      `json:"query_id" yaml:"query_id"`
	Collection     string         `json:"collection" yaml:"collection"`
	ResultCount    int            `json:"result_count" yaml:"result_count"`
	TruePositives  int            `json:"true_positives" yaml:"true_positives"`
	FalsePositives int            `json:"false_positives" yaml:"false_positives"`
	FalseNegatives int            `json:"false_negatives" yaml:"false_negatives"`
	Precision      float64        `json:"precision" yaml:"precision"`
	Recall         float64        `json:"recall" yaml:"recall"`
	F1             float64        `json:"f1_score" yaml:"f1_score"`
	Impact         float64        `json:"impact" yaml:"impact"`
	ExecutionTime  time.Duration  `json:"execution_time" yaml:"execution_time"`
	QueryText      string         `json:"query_text" yaml:"query_text"`
	Params         map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}
