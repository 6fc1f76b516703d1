package config

// Version is the single source of truth for the orchestrator's version,
// reported on /health and sent as the MCP client implementation version.
const Version = "1.0.0"

// GetVersion returns the current version
func GetVersion() string {
	return Version
}
