package relay

import (
	"time"

	"github.com/pentestai/pentestai/pkg/catalog"
	"github.com/pentestai/pentestai/pkg/provider"
	"github.com/pentestai/pentestai/pkg/ratelimit"
)

// DefaultMaxHistory is how many prior messages are forwarded when MaxHistory is unset.
const DefaultMaxHistory = 20

// TranscriptDB values that don't name a SQLite file.
const (
	// TranscriptsOff disables recording, same as an empty TranscriptDB.
	TranscriptsOff = "off"

	// TranscriptsMemory records into a capped in-process store.
	TranscriptsMemory = "memory"
)

// Config is the relay server configuration.
type Config struct {
	// Address to listen on (e.g., ":3000")
	ListenAddr string

	// Provider configures the upstream chat-completion client.
	Provider provider.Config

	// Catalog is the model table. Nil uses the built-in table.
	Catalog *catalog.Catalog

	// Tracker holds the provider quota state. Nil creates one from ProbeThreshold and ProbeTTL.
	Tracker *ratelimit.Tracker

	// ProbeEnabled turns on the quota-status probe before each chat request.
	ProbeEnabled   bool
	ProbeURL       string
	ProbeTTL       time.Duration
	ProbeThreshold int

	// SystemPromptFile replaces the built-in system prompt and is reloaded on change.
	SystemPromptFile string

	// MaxHistory caps forwarded history. Zero means DefaultMaxHistory.
	MaxHistory int

	// TranscriptDB turns on transcript recording: a SQLite path or
	// TranscriptsMemory. Empty or TranscriptsOff records nothing.
	// Recorded transcripts are readable by every client of the relay.
	TranscriptDB string
}
