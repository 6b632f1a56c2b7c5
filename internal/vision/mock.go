package vision

import "context"

// MockProvider implements Provider for testing.
type MockProvider struct {
	ProviderName string
	GenerateFn   func(ctx context.Context, req Request) (Response, error)
	Calls        []Request
}

func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockProvider) Generate(ctx context.Context, req Request) (Response, error) {
	m.Calls = append(m.Calls, req)
	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, req)
	}
	return Response{Text: "{}", Model: req.Model}, nil
}
