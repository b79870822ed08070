package ir

// Version constants for the data model and engine.
const (
	// SchemaVersion is the storage schema version written to schema_version.
	SchemaVersion = 1

	// EngineVersion is the procflow engine version.
	EngineVersion = "0.1.0"
)
