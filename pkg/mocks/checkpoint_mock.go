package mocks

import (
	"context"

	"github.com/quartictech/quartic/pkg/checkpoint"
	"github.com/stretchr/testify/mock"
)

// MockCheckpointStore is a mock implementation of checkpoint.Store interface.
type MockCheckpointStore struct {
	mock.Mock
}

func (m *MockCheckpointStore) Load(ctx context.Context) (checkpoint.Set, error) {
	args := m.Called(ctx)

	set, _ := args.Get(0).(checkpoint.Set)

	return set, args.Error(1)
}

func (m *MockCheckpointStore) Save(ctx context.Context, set checkpoint.Set) error {
	args := m.Called(ctx, set)

	return args.Error(0)
}

func (m *MockCheckpointStore) Close() error {
	args := m.Called()

	return args.Error(0)
}
