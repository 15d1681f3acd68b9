package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/escrowhq/escrow/clients/evm"
)

// MockClientResolver for testing
type MockClientResolver struct {
	mock.Mock
}

func (m *MockClientResolver) GetClient(chainID uint64) (evm.Backend, error) {
	args := m.Called(chainID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(evm.Backend), args.Error(1)
}
