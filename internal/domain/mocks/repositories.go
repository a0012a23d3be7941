// Package mocks provides testify mocks for the domain ports.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

// MockResumeRepository is a mock of domain.ResumeRepository.
type MockResumeRepository struct{ mock.Mock }

func (m *MockResumeRepository) Create(ctx domain.Context, r domain.ResumeRecord) (string, error) {
	args := m.Called(ctx, r)
	return args.String(0), args.Error(1)
}

func (m *MockResumeRepository) Get(ctx domain.Context, id string) (domain.ResumeRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.ResumeRecord), args.Error(1)
}

func (m *MockResumeRepository) GetMany(ctx domain.Context, ids []string) ([]domain.ResumeRecord, error) {
	args := m.Called(ctx, ids)
	out, _ := args.Get(0).([]domain.ResumeRecord)
	return out, args.Error(1)
}

func (m *MockResumeRepository) List(ctx domain.Context, limit int) ([]domain.ResumeRecord, error) {
	args := m.Called(ctx, limit)
	out, _ := args.Get(0).([]domain.ResumeRecord)
	return out, args.Error(1)
}

// MockJobRepository is a mock of domain.JobRepository.
type MockJobRepository struct{ mock.Mock }

func (m *MockJobRepository) Create(ctx domain.Context, j domain.JobRecord) (string, error) {
	args := m.Called(ctx, j)
	return args.String(0), args.Error(1)
}

func (m *MockJobRepository) Get(ctx domain.Context, id string) (domain.JobRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.JobRecord), args.Error(1)
}

func (m *MockJobRepository) List(ctx domain.Context, limit int) ([]domain.JobRecord, error) {
	args := m.Called(ctx, limit)
	out, _ := args.Get(0).([]domain.JobRecord)
	return out, args.Error(1)
}

// MockEvaluationRepository is a mock of domain.EvaluationRepository.
type MockEvaluationRepository struct{ mock.Mock }

func (m *MockEvaluationRepository) Create(ctx domain.Context, e domain.Evaluation) (domain.Evaluation, error) {
	args := m.Called(ctx, e)
	if fn, ok := args.Get(0).(func(domain.Context, domain.Evaluation) domain.Evaluation); ok {
		return fn(ctx, e), args.Error(1)
	}
	return args.Get(0).(domain.Evaluation), args.Error(1)
}

func (m *MockEvaluationRepository) ListByJob(ctx domain.Context, jobID string, f domain.EvaluationFilter) ([]domain.Evaluation, error) {
	args := m.Called(ctx, jobID, f)
	out, _ := args.Get(0).([]domain.Evaluation)
	return out, args.Error(1)
}
