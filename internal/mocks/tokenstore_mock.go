package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/metatavu/pakkasmarja-realtime/internal/models"
)

// MockTokenStore is a mock implementation of the tokenstore.Store interface
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Get() (*models.Credential, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Credential), args.Error(1)
}

func (m *MockTokenStore) Set(credential *models.Credential) error {
	args := m.Called(credential)
	return args.Error(0)
}

func (m *MockTokenStore) Clear() error {
	args := m.Called()
	return args.Error(0)
}
