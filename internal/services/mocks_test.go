package services_test

import (
	"context"

	"modelhub_go_backend/internal/models"
	"modelhub_go_backend/internal/services"

	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Complete(ctx context.Context, modelID string, messages []services.ChatMessage, temperature float64, maxTokens int) (*services.CompletionResult, error) {
	args := m.Called(ctx, modelID, messages, temperature, maxTokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CompletionResult), args.Error(1)
}

func (m *MockProvider) PriceBreakdown(ctx context.Context, modelID string, promptTokens, completionTokens int) services.CostBreakdown {
	args := m.Called(ctx, modelID, promptTokens, completionTokens)
	return args.Get(0).(services.CostBreakdown)
}

type MockQuota struct {
	mock.Mock
}

func (m *MockQuota) Check(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

type MockUsage struct {
	mock.Mock
}

func (m *MockUsage) Record(ctx context.Context, in services.RecordInput) (*models.UsageRecord, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UsageRecord), args.Error(1)
}

func (m *MockUsage) ReportFailure(ctx context.Context, user *models.User, message string) {
	m.Called(ctx, user, message)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyKey(ctx context.Context, key string) (bool, string) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.String(1)
}
