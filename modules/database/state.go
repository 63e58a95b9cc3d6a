package database

import "fmt"

// State is the lifecycle state of the shared database connection.
type State string

const (
	// StateUnknown is the initial state before the first connection attempt.
	StateUnknown State = "UNKNOWN"
	// StateConnecting means a connection attempt is in progress.
	StateConnecting State = "CONNECTING"
	// StateConnected means the database is reachable and the schema is compatible.
	StateConnected State = "CONNECTED"
	// StateDisconnected means the last attempt failed or the connection was lost.
	StateDisconnected State = "DISCONNECTED"
	// StateMigrationFailed means the schema needed migrating and the migration failed.
	StateMigrationFailed State = "MIGRATION_FAILED"
	// StateSchemaIncompatible means the schema does not match and cannot be migrated automatically.
	StateSchemaIncompatible State = "SCHEMA_INCOMPATIBLE"
)

// States lists every state in declaration order.
var States = []State{
	StateUnknown,
	StateConnecting,
	StateConnected,
	StateDisconnected,
	StateMigrationFailed,
	StateSchemaIncompatible,
}

func (s State) String() string {
	return string(s)
}

// Available reports whether operations may run in this state.
func (s State) Available() bool {
	return s == StateConnected
}

// Terminal reports whether leaving this state requires operator action.
func (s State) Terminal() bool {
	return s == StateMigrationFailed || s == StateSchemaIncompatible
}

// Message returns the remediation hint reported when an operation is
// refused in this state.
func (s State) Message() string {
	switch s {
	case StateConnected:
		return "Database is connected and ready for operations."
	case StateDisconnected:
		return "Database is currently unavailable. Please check your database connection " +
			"and ensure the PostgreSQL service is running."
	case StateMigrationFailed:
		return "Database migration failed. The database schema may be incompatible. " +
			"Please check the server logs for details."
	case StateSchemaIncompatible:
		return "Database schema is incompatible with the current application version. " +
			"Manual database migration may be required."
	default:
		return fmt.Sprintf("Database is in an unknown state: %s. "+
			"Please check the server logs for details.", s)
	}
}

// StatusMessage returns the short description used by connectivity reports.
func (s State) StatusMessage() string {
	switch s {
	case StateConnected:
		return "Database is connected and ready for operations"
	case StateDisconnected:
		return "Database is currently unavailable"
	case StateConnecting:
		return "Database connection is being established"
	case StateMigrationFailed:
		return "Database migration failed - manual intervention may be required"
	case StateSchemaIncompatible:
		return "Database schema is incompatible with current application version"
	case StateUnknown:
		return "Database status is unknown"
	default:
		return "Unknown status"
	}
}

// Recommendation returns guidance for an automated caller.
func (s State) Recommendation() string {
	if s.Available() {
		return "Database is ready for operations"
	}
	return "Use this tool to check database status before calling other tools"
}
