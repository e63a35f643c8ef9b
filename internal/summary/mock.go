package summary

import (
	"context"

	"github.com/paperhub/course-chat/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Summarize(ctx context.Context, transcript []types.Message, participants []types.User) (Result, error) {
	args := m.Called(ctx, transcript, participants)
	return args.Get(0).(Result), args.Error(1)
}
