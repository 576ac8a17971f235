package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/watchtower/internal/domain"
)

// MockPriceSource is a mock implementation of domain.PriceSource for testing
type MockPriceSource struct {
	mu     sync.RWMutex
	bars   map[string][]domain.PriceBar
	errs   map[string]error
	delays map[string]time.Duration
	calls  map[string]int
}

// NewMockPriceSource creates a new mock price source
func NewMockPriceSource() *MockPriceSource {
	return &MockPriceSource{
		bars:   make(map[string][]domain.PriceBar),
		errs:   make(map[string]error),
		delays: make(map[string]time.Duration),
		calls:  make(map[string]int),
	}
}

// SetBars sets the bars returned for ticker
func (m *MockPriceSource) SetBars(ticker string, bars []domain.PriceBar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[ticker] = bars
}

// SetError makes every fetch for ticker fail
func (m *MockPriceSource) SetError(ticker string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[ticker] = err
}

// SetDelay makes fetches for ticker block for d or until ctx is done
func (m *MockPriceSource) SetDelay(ticker string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[ticker] = d
}

// Calls returns how many times ticker was fetched
func (m *MockPriceSource) Calls(ticker string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[ticker]
}

// FetchBars returns the configured bars within [from, to]
func (m *MockPriceSource) FetchBars(ctx context.Context, ticker string, from, to time.Time) ([]domain.PriceBar, error) {
	m.mu.Lock()
	m.calls[ticker]++
	delay := m.delays[ticker]
	err := m.errs[ticker]
	all := m.bars[ticker]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	var out []domain.PriceBar
	for _, b := range all {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// MockFundamentalsSource is a mock implementation of domain.FundamentalsSource for testing
type MockFundamentalsSource struct {
	mu   sync.RWMutex
	data map[string]*domain.Fundamentals
	err  error
}

// NewMockFundamentalsSource creates a new mock fundamentals source
func NewMockFundamentalsSource() *MockFundamentalsSource {
	return &MockFundamentalsSource{data: make(map[string]*domain.Fundamentals)}
}

// Set sets the fundamentals returned for a ticker
func (m *MockFundamentalsSource) Set(f domain.Fundamentals) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[f.Ticker] = &f
}

// SetError sets the error to return
func (m *MockFundamentalsSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// FetchFundamentals returns the configured fundamentals
func (m *MockFundamentalsSource) FetchFundamentals(_ context.Context, ticker string) (*domain.Fundamentals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	f, ok := m.data[ticker]
	if !ok {
		return nil, fmt.Errorf("fundamentals for %s: %w", ticker, domain.ErrNotFound)
	}
	copied := *f
	return &copied, nil
}

// MockNotifier is a mock implementation of domain.Notifier that records deliveries
type MockNotifier struct {
	mu      sync.Mutex
	name    string
	batches [][]domain.Notice
	err     error
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier(name string) *MockNotifier {
	return &MockNotifier{name: name}
}

// SetError sets the error to return
func (m *MockNotifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Name returns the notifier name
func (m *MockNotifier) Name() string {
	return m.name
}

// Notify records the batch
func (m *MockNotifier) Notify(_ context.Context, notices []domain.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	batch := make([]domain.Notice, len(notices))
	copy(batch, notices)
	m.batches = append(m.batches, batch)
	return nil
}

// Batches returns every recorded batch
func (m *MockNotifier) Batches() [][]domain.Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}
