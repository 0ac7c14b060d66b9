//go:build test

package testutils

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStore is a testify mock of the address→name store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) ReadAll(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	names, _ := args.Get(0).(map[string]string)
	return names, args.Error(1)
}

func (m *MockStore) WriteAll(ctx context.Context, names map[string]string) error {
	args := m.Called(ctx, names)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
