package testing

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/domain"
)

// MockBackend is a testify mock of backend.Backend.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockBackend) Properties(ctx context.Context) (*backend.Properties, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*backend.Properties), args.Error(1)
}

func (m *MockBackend) Submit(ctx context.Context, circuits []domain.Circuit, shots int, opts backend.SubmitOptions) (backend.Job, error) {
	args := m.Called(ctx, circuits, shots, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(backend.Job), args.Error(1)
}

func (m *MockBackend) Job(ctx context.Context, id string) (backend.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(backend.Job), args.Error(1)
}

// DoneJob is a job that has already finished with fixed results.
type DoneJob struct {
	JobID   string
	Results []domain.Histogram
}

func (j *DoneJob) ID() string { return j.JobID }

func (j *DoneJob) Status(ctx context.Context) (backend.Status, error) {
	return backend.StatusDone, nil
}

func (j *DoneJob) Result(ctx context.Context) ([]domain.Histogram, error) {
	return domain.Copies(j.Results), nil
}
