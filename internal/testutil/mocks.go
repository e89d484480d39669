package testutil

import (
	"context"

	"github.com/dgellow/throwapin-auth/internal/idp"
	"github.com/dgellow/throwapin-auth/internal/storage"
	"github.com/stretchr/testify/mock"
)

var _ storage.UserStore = (*MockUserStore)(nil)

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) UpsertUser(ctx context.Context, profile idp.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockUserStore) GetUser(ctx context.Context, email string) (*storage.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.User), args.Error(1)
}

func (m *MockUserStore) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
