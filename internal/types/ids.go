package types

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// NewSurveyID generates a UUIDv7 survey identifier.
// Time-ordered IDs ensure sequential inserts cluster in B-tree pages.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewSurveyID() SurveyID {
	return SurveyID(uuid.Must(uuid.NewV7()).String())
}

// NewQuestionID generates a UUIDv7 question identifier.
func NewQuestionID() QuestionID {
	return QuestionID(uuid.Must(uuid.NewV7()).String())
}

// NewRuleID generates a UUIDv7 rule identifier. Creation order is embedded
// in the ID, so ordering by (priority, id) breaks priority ties by insertion.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewSessionID generates a UUIDv7 session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.Must(uuid.NewV7()).String())
}

// NewResponseID generates a UUIDv7 response identifier.
func NewResponseID() ResponseID {
	return ResponseID(uuid.Must(uuid.NewV7()).String())
}

// NewAuditID generates a UUIDv7 audit row identifier.
func NewAuditID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewDependencyID generates a UUIDv7 dependency edge identifier.
func NewDependencyID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewSessionToken returns a 64-character hex token from 32 bytes of
// cryptographically secure randomness. Tokens are the only credential a
// respondent holds, so they must be unguessable, unlike entity IDs.
func NewSessionToken() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// ParseSurveyID validates and converts a string to SurveyID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseSurveyID(s string) (SurveyID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return SurveyID(s), nil
}

// ParseQuestionID validates and converts a string to QuestionID.
func ParseQuestionID(s string) (QuestionID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return QuestionID(s), nil
}

// ParseRuleID validates and converts a string to RuleID.
func ParseRuleID(s string) (RuleID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return RuleID(s), nil
}
