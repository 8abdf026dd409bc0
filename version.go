package steward

// Version is the steward release version, reported by the HTTP API and
// the CLI.
const Version = "0.1.0"
