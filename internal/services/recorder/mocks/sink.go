package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) RecordFill(ctx context.Context, fill models.Fill) error {
	args := m.Called(ctx, fill)
	return args.Error(0)
}
