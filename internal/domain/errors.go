package domain

import "errors"

var (
	ErrSlotNotFound    = errors.New("slot not found")
	ErrSourceNotFound  = errors.New("source not found")
	ErrInvalidReading  = errors.New("invalid reading payload")
	ErrSubscriberLimit = errors.New("subscriber limit reached")
)
