package orchestration

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config tunes turn completion and connectivity tolerance. None of these
// values are assumed by the core; a manager cannot be built without a valid
// Config.
type Config struct {
	// CompletionExtensionDelay is how long to wait before re-validating a turn
	// that failed validation.
	CompletionExtensionDelay time.Duration `yaml:"completion_extension_delay" json:"completion_extension_delay" validate:"gt=0" jsonschema:"type=string,description=Delay before re-validating an incomplete turn (Go duration)"`
	// MaxCompletionExtensions bounds the extension windows per turn before the
	// turn is completed with a timeout.
	MaxCompletionExtensions int `yaml:"max_completion_extensions" json:"max_completion_extensions" validate:"gte=0" jsonschema:"minimum=0,description=Extension windows before timeout fallback"`
	// ConnectivityDisconnectThreshold is how many disconnections a session
	// tolerates. The next one is fatal.
	ConnectivityDisconnectThreshold int `yaml:"connectivity_disconnect_threshold" json:"connectivity_disconnect_threshold" validate:"gte=0" jsonschema:"minimum=0,description=Tolerated disconnections per session"`
	// ConnectivityRecoveryWindow is how long a disconnected transport has to
	// reconnect.
	ConnectivityRecoveryWindow time.Duration `yaml:"connectivity_recovery_window" json:"connectivity_recovery_window" validate:"gt=0" jsonschema:"type=string,description=Time allowed to reconnect after a disconnection (Go duration)"`
	// HardAudioTimeout caps how long a single turn may stay open.
	HardAudioTimeout time.Duration `yaml:"hard_audio_timeout" json:"hard_audio_timeout" validate:"gt=0,gtfield=CompletionExtensionDelay" jsonschema:"type=string,description=Maximum lifetime of a single turn (Go duration)"`
	// MinTranscriptLength is the minimum transcript length, in runes, for a
	// transcript to count as well formed.
	MinTranscriptLength int `yaml:"min_transcript_length" json:"min_transcript_length" validate:"gte=0" jsonschema:"minimum=0,description=Minimum transcript length in runes"`
}

// DefaultConfig returns starting values meant to be calibrated against the
// real transport.
func DefaultConfig() Config {
	return Config{
		CompletionExtensionDelay:        1500 * time.Millisecond,
		MaxCompletionExtensions:         2,
		ConnectivityDisconnectThreshold: 2,
		ConnectivityRecoveryWindow:      5 * time.Second,
		HardAudioTimeout:                60 * time.Second,
		MinTranscriptLength:             2,
	}
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid conversation config: %w", err)
	}
	return nil
}
