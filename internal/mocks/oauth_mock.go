package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/metatavu/pakkasmarja-realtime/pkg/oauth"
)

// MockOAuthClient is a mock implementation of the oauth.Client interface
type MockOAuthClient struct {
	mock.Mock
}

func (m *MockOAuthClient) Login(ctx context.Context, username, password string) (*oauth.TokenResponse, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth.TokenResponse), args.Error(1)
}

func (m *MockOAuthClient) Refresh(ctx context.Context, refreshToken string) (*oauth.TokenResponse, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth.TokenResponse), args.Error(1)
}
