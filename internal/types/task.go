package types

// TaskType classifies what a prompt is asking for. Closed set.
type TaskType string

const (
	TaskCodeGeneration      TaskType = "code_generation"
	TaskDebugging           TaskType = "debugging"
	TaskReasoning           TaskType = "reasoning"
	TaskArchitecturalDesign TaskType = "architectural_design"
	TaskDocumentation       TaskType = "documentation"
	TaskTesting             TaskType = "testing"
	TaskDataAnalysis        TaskType = "data_analysis"
	TaskCreativeWriting     TaskType = "creative_writing"
	TaskTranslation         TaskType = "translation"
	TaskGeneral             TaskType = "general"
)

// AllTaskTypes lists every task type in declaration order.
// Order matters: it is the tie-break for pattern scoring.
var AllTaskTypes = []TaskType{
	TaskCodeGeneration,
	TaskDebugging,
	TaskReasoning,
	TaskArchitecturalDesign,
	TaskDocumentation,
	TaskTesting,
	TaskDataAnalysis,
	TaskCreativeWriting,
	TaskTranslation,
	TaskGeneral,
}

// Valid returns true if t is one of the known task types.
func (t TaskType) Valid() bool {
	for _, known := range AllTaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Priority expresses what the caller wants optimized during selection.
type Priority string

const (
	PriorityQuality  Priority = "quality"
	PrioritySpeed    Priority = "speed"
	PriorityCost     Priority = "cost"
	PriorityBalanced Priority = "balanced"
)

// TaskRequirements is the outcome of prompt analysis.
type TaskRequirements struct {
	TaskType             TaskType `json:"taskType"`
	Confidence           float64  `json:"confidence"` // [0,1]
	MinContextWindow     int      `json:"minContextWindow,omitempty"`
	NeedsFunctionCalling bool     `json:"needsFunctionCalling"`
	NeedsVision          bool     `json:"needsVision"`
	Priority             Priority `json:"priority"`
}
