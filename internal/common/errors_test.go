package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindMatching(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     Kind
	}{
		{"validation", ValidationError("submit", "batch too large"), ErrValidation, KindValidation},
		{"file", FileProcessingError("extract", errors.New("eof"), "read failed"), ErrFileProcessing, KindFileProcessing},
		{"model", ModelInferenceError("analyze", nil, "missing key %q", "risk_score"), ErrModelInference, KindModelInference},
		{"external", ExternalServiceError("embed", errors.New("503"), "embedding service"), ErrExternalService, KindExternalService},
		{"database", DatabaseError("save", errors.New("disk full"), "write report"), ErrDatabase, KindDatabase},
		{"not found", NotFoundError("get", "report %s", "r1"), ErrNotFound, KindNotFound},
		{"conflict", ConflictError("fail_report", "report %s claimed by %s", "r1", "bat_1"), ErrConflict, KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.Equal(t, tt.kind, KindOf(wrapped))
		})
	}
}

func TestErrorKindsDoNotCrossMatch(t *testing.T) {
	err := ModelInferenceError("analyze", nil, "bad json")
	assert.False(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrDatabase))
}

func TestErrorMessageIncludesOpAndCause(t *testing.T) {
	err := DatabaseError("save_report", errors.New("conflict"), "write failed")
	assert.Equal(t, "save_report: write failed: conflict", err.Error())

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.True(t, e.Retryable())
	assert.False(t, ValidationError("x", "y").(*Error).Retryable())
}
