package scan

import "fmt"

// StrategyFactory maps strategy IDs (from sources.yaml) to implementations.
type StrategyFactory struct {
	strategies map[string]Strategy
}

func NewStrategyFactory() *StrategyFactory {
	return &StrategyFactory{
		strategies: make(map[string]Strategy),
	}
}

func (f *StrategyFactory) Register(id string, strategy Strategy) {
	f.strategies[id] = strategy
}

func (f *StrategyFactory) Get(id string) (Strategy, error) {
	strategy, ok := f.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy not found: %s", id)
	}
	return strategy, nil
}

// DefaultStrategyFactory returns a factory with the built-in strategies
// registered.
func DefaultStrategyFactory() *StrategyFactory {
	f := NewStrategyFactory()
	f.Register("html_table", &HTMLTableStrategy{})
	f.Register("json_feed", &JSONFeedStrategy{})
	return f
}
