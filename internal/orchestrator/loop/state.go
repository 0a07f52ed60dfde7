package loop

import "sync"

// DefaultState implements the State interface with thread-safe counters.
type DefaultState struct {
	mu sync.RWMutex

	round     int
	maxRounds int
}

// NewDefaultState creates a new DefaultState with the specified configuration
func NewDefaultState(config *Config) *DefaultState {
	if config == nil {
		config = DefaultConfig()
	}
	max := config.MaxRounds
	if max <= 0 {
		max = DefaultConfig().MaxRounds
	}
	return &DefaultState{maxRounds: max}
}

// Round returns the number of rounds run so far
func (s *DefaultState) Round() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

// Increment advances the round counter and returns the new count
func (s *DefaultState) Increment() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.round++
	return s.round
}

// MaxRounds returns the round budget
func (s *DefaultState) MaxRounds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxRounds
}

// HasReachedLimit returns true if the round budget is spent
func (s *DefaultState) HasReachedLimit() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round >= s.maxRounds
}

// MockState is a test-friendly implementation of State
type MockState struct {
	MockRound     int
	MockMaxRounds int

	OnIncrement func()
}

func (m *MockState) Round() int { return m.MockRound }

func (m *MockState) Increment() int {
	if m.OnIncrement != nil {
		m.OnIncrement()
	}
	m.MockRound++
	return m.MockRound
}

func (m *MockState) MaxRounds() int { return m.MockMaxRounds }

func (m *MockState) HasReachedLimit() bool { return m.MockRound >= m.MockMaxRounds }
