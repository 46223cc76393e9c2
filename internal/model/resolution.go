package model

// TaskType identifies what a resolution request is asking for.
type TaskType string

const (
	// TaskDescriptionNormalization turns a raw statement description into a
	// clean human-readable one.
	TaskDescriptionNormalization TaskType = "description_normalization"
	// TaskGLSuggestion suggests a general-ledger code for a description.
	TaskGLSuggestion TaskType = "gl_suggestion"
	// TaskDepartmentSuggestion suggests a department for a description.
	TaskDepartmentSuggestion TaskType = "department_suggestion"
	// TaskColumnMapping maps statement header columns to their roles.
	TaskColumnMapping TaskType = "column_mapping"
)

// Tier is one strategy level in the cost-ordered resolution cascade.
type Tier int

const (
	// TierNone means no tier produced a value.
	TierNone Tier = 0
	// TierCache is the exact/deterministic lookup tier.
	TierCache Tier = 1
	// TierSimilarity is the embedding nearest-neighbor tier.
	TierSimilarity Tier = 2
	// TierCheapInference is the low-cost model tier.
	TierCheapInference Tier = 3
	// TierExpensiveInference is the caller-selected escalation tier.
	TierExpensiveInference Tier = 4
)

// Resolution is the outcome of a cascade run. A failed or empty resolution is
// "no suggestion", not an error: callers continue their workflow with the
// empty value.
type Resolution struct {
	Value      string
	Task       TaskType
	Tier       Tier
	Confidence float64
	Failed     bool // the tier was attempted but the external call failed
}

// Suggested reports whether the resolution carries a usable value.
func (r Resolution) Suggested() bool {
	return !r.Failed && r.Value != ""
}
