package mocks

import (
	"context"

	"github.com/rickchristie/govner/mayatdd/internal/host"
	"github.com/rickchristie/govner/mayatdd/internal/suite"
)

type MockHost struct {
	SuppressOutputFunc func() error
	RestoreOutputFunc  func() error
	ResetDocumentFunc  func() error
	RunTestFunc        func(ctx context.Context, t suite.Test) (host.Outcome, error)
}

func (m *MockHost) SuppressOutput() error {
	if m.SuppressOutputFunc != nil {
		return m.SuppressOutputFunc()
	}
	return nil
}

func (m *MockHost) RestoreOutput() error {
	if m.RestoreOutputFunc != nil {
		return m.RestoreOutputFunc()
	}
	return nil
}

func (m *MockHost) ResetDocument() error {
	if m.ResetDocumentFunc != nil {
		return m.ResetDocumentFunc()
	}
	return nil
}

func (m *MockHost) RunTest(ctx context.Context, t suite.Test) (host.Outcome, error) {
	if m.RunTestFunc != nil {
		return m.RunTestFunc(ctx, t)
	}
	return host.Outcome{Status: suite.StatusSuccess}, nil
}
