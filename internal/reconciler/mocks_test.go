package reconciler

import (
	"context"
	"time"

	"storefront/internal/domain/model"

	"github.com/stretchr/testify/mock"
)

type FileStoreMock struct{ mock.Mock }

func (m *FileStoreMock) FindByID(ctx context.Context, id string) (model.File, error) {
	args := m.Called(ctx, id)
	f, _ := args.Get(0).(model.File)
	return f, args.Error(1)
}

func (m *FileStoreMock) SetJob(ctx context.Context, id string, attempt int, jobID string) error {
	args := m.Called(ctx, id, attempt, jobID)
	return args.Error(0)
}

func (m *FileStoreMock) Resolve(ctx context.Context, id string, attempt int, state model.FileState, now time.Time) (bool, error) {
	args := m.Called(ctx, id, attempt, state)
	return args.Bool(0), args.Error(1)
}

func (m *FileStoreMock) ListUnsliced(ctx context.Context, limit int) ([]model.File, error) {
	args := m.Called(ctx, limit)
	files, _ := args.Get(0).([]model.File)
	return files, args.Error(1)
}

type SlicerMock struct{ mock.Mock }

func (m *SlicerMock) Submit(ctx context.Context, fileID string, blobURL string) (string, error) {
	args := m.Called(ctx, fileID, blobURL)
	return args.String(0), args.Error(1)
}

func (m *SlicerMock) QueryStatus(ctx context.Context, fileID string, jobID string) (model.FileState, error) {
	args := m.Called(ctx, fileID, jobID)
	st, _ := args.Get(0).(model.FileState)
	return st, args.Error(1)
}
