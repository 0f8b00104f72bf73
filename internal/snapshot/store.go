package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/Lantsov/middleman/internal/domain"
)

// Store is the single source of truth for the latest reading of every slot.
type Store struct {
	mu       sync.RWMutex
	readings []domain.Reading
}

// NewStore allocates n slots (1..n), all NotConnected.
func NewStore(n int) *Store {
	readings := make([]domain.Reading, n)
	for i := range readings {
		readings[i] = domain.DisconnectedReading()
	}
	return &Store{readings: readings}
}

func (s *Store) Len() int {
	// length is fixed at construction
	return len(s.readings)
}

func (s *Store) index(slot domain.Slot) (int, error) {
	i := int(slot) - 1
	if i < 0 || i >= len(s.readings) {
		return 0, fmt.Errorf("slot %d: %w", slot, domain.ErrSlotNotFound)
	}
	return i, nil
}

// Get returns a copy of the slot's reading.
func (s *Store) Get(slot domain.Slot) (domain.Reading, error) {
	i, err := s.index(slot)
	if err != nil {
		return domain.Reading{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readings[i], nil
}

// Set replaces the slot's reading wholesale.
func (s *Store) Set(slot domain.Slot, r domain.Reading) error {
	i, err := s.index(slot)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[i] = r
	return nil
}

// SetStatus updates only the status, leaving weights and device message untouched.
func (s *Store) SetStatus(slot domain.Slot, status domain.Status) error {
	i, err := s.index(slot)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[i].Status = status
	return nil
}

// Readings returns a copy of all readings, index 0 being slot 1.
func (s *Store) Readings() []domain.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Reading, len(s.readings))
	copy(out, s.readings)
	return out
}

// Encode serializes the whole snapshot as a JSON object keyed by slot number,
// in ascending numeric order.
func (s *Store) Encode() ([]byte, error) {
	return Encode(s.Readings())
}

// Encode writes readings as {"1":...,"2":...}. encoding/json would sort map keys
// lexically ("10" before "2"), so the object is assembled by hand.
func Encode(readings []domain.Reading) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range readings {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(i + 1)))
		buf.WriteByte(':')

		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal slot %d: %w", i+1, err)
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
