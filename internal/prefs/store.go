// Package prefs is the durable per-user consent store. The mere presence
// of a record for a user means that user completed the consent flow;
// absence forces consent capture on the next session.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trustguard-client/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const keyPrefix = "consent_"

// ConsentRecord is one stored preference set, keyed "consent_<userId>".
type ConsentRecord struct {
	Key       string    `gorm:"primaryKey"`
	Prefs     string    `gorm:"not null"` // serialized PreferenceSet
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewStore(db *gorm.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Load returns the stored preferences for the user, or (nil, nil) when no
// consent record exists.
func (s *Store) Load(userID string) (*models.PreferenceSet, error) {
	var record ConsentRecord
	err := s.db.First(&record, "key = ?", keyPrefix+userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load consent record: %w", err)
	}

	var set models.PreferenceSet
	if err := json.Unmarshal([]byte(record.Prefs), &set); err != nil {
		return nil, fmt.Errorf("failed to decode consent record: %w", err)
	}
	return &set, nil
}

// Save writes the preferences for the user, overwriting any prior record.
func (s *Store) Save(userID string, set models.PreferenceSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	record := ConsentRecord{Key: keyPrefix + userID, Prefs: string(payload)}
	err = s.db.Save(&record).Error
	if err != nil {
		return fmt.Errorf("failed to save consent record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
	}).Debug("Consent record saved")
	return nil
}
