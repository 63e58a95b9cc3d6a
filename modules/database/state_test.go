package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_Classification(t *testing.T) {
	for _, s := range States {
		assert.Equal(t, s == StateConnected, s.Available(), s)
		assert.Equal(t, s == StateMigrationFailed || s == StateSchemaIncompatible, s.Terminal(), s)
	}
}

func TestState_Message(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "Database is currently unavailable. Please check your database connection and ensure the PostgreSQL service is running."},
		{StateMigrationFailed, "Database migration failed. The database schema may be incompatible. Please check the server logs for details."},
		{StateSchemaIncompatible, "Database schema is incompatible with the current application version. Manual database migration may be required."},
		{StateUnknown, "Database is in an unknown state: UNKNOWN. Please check the server logs for details."},
		{StateConnecting, "Database is in an unknown state: CONNECTING. Please check the server logs for details."},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Message())
		})
	}
}

func TestState_StatusMessage(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range States {
		msg := s.StatusMessage()
		assert.NotEqual(t, "Unknown status", msg, s)
		assert.False(t, seen[msg], "duplicate status message %q", msg)
		seen[msg] = true
	}
	assert.Equal(t, "Unknown status", State("BOGUS").StatusMessage())
}

func TestState_Recommendation(t *testing.T) {
	assert.Equal(t, "Database is ready for operations", StateConnected.Recommendation())
	assert.Equal(t, "Use this tool to check database status before calling other tools",
		StateDisconnected.Recommendation())
}
