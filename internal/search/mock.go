package search

import "context"

// MockProvider is a fixed-result Provider for tests.
type MockProvider struct {
	ProviderName string
	Results      []Result
	Err          error
}

func (m *MockProvider) Name() string { return m.ProviderName }

func (m *MockProvider) Search(ctx context.Context, query string) ([]Result, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Results, nil
}
