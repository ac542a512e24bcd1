package services

import (
	"context"

	"modelhub_go_backend/internal/models"
)

type ChatProvider interface {
	Complete(ctx context.Context, modelID string, messages []ChatMessage, temperature float64, maxTokens int) (*CompletionResult, error)
	PriceBreakdown(ctx context.Context, modelID string, promptTokens, completionTokens int) CostBreakdown
}

type QuotaChecker interface {
	Check(ctx context.Context, user *models.User) error
}

type UsageRecorder interface {
	Record(ctx context.Context, in RecordInput) (*models.UsageRecord, error)
	ReportFailure(ctx context.Context, user *models.User, message string)
}

type ModelLookup interface {
	GetModelByModelID(ctx context.Context, modelID string) (*models.AIModel, error)
}
