package paper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"coinspread/pkg/model"
)

// Store persists trade history as a JSON file under the data directory.
// Writes go through a temp file and rename so a crash never leaves a
// half-written history behind.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store writing to dir/trades.json.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Store{path: filepath.Join(dir, "trades.json")}, nil
}

// List returns all recorded trades, newest first.
func (s *Store) List() ([]model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() ([]model.Trade, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.Trade{}, nil
		}
		return nil, fmt.Errorf("failed to read trade history: %w", err)
	}

	var trades []model.Trade
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, fmt.Errorf("failed to parse trade history: %w", err)
	}
	return trades, nil
}

// Save inserts or updates a trade by ID.
func (s *Store) Save(trade model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trades, err := s.loadLocked()
	if err != nil {
		return err
	}

	updated := false
	for i := range trades {
		if trades[i].ID == trade.ID {
			trades[i] = trade
			updated = true
			break
		}
	}
	if !updated {
		trades = append([]model.Trade{trade}, trades...)
	}

	data, err := json.MarshalIndent(trades, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trade history: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write trade history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace trade history: %w", err)
	}
	return nil
}
