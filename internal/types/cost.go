package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostStatus describes the outcome recorded on a cost event.
type CostStatus string

const (
	CostStatusSuccess      CostStatus = "success"
	CostStatusFailed       CostStatus = "failed"
	CostStatusFallbackUsed CostStatus = "fallback_used"
)

// CostEvent is emitted once per completed orchestration.
// Monetary amounts are decimals so billing math never loses precision.
type CostEvent struct {
	TraceID          string          `json:"traceId"`
	Timestamp        time.Time       `json:"timestamp"`
	ModelID          string          `json:"modelId"`
	Provider         string          `json:"provider"`
	TaskType         TaskType        `json:"taskType"`
	PromptTokens     int             `json:"promptTokens"`
	CompletionTokens int             `json:"completionTokens"`
	CostUSDInput     decimal.Decimal `json:"costUsdInput"`
	CostUSDOutput    decimal.Decimal `json:"costUsdOutput"`
	CostUSDTotal     decimal.Decimal `json:"costUsdTotal"`
	Status           CostStatus      `json:"status"`
	FallbackDepth    int             `json:"fallbackDepth"`
}
