package publisher

import "time"

// Config tunes how the state machine drives the platform.
type Config struct {
	BaseURL  string
	Username string
	Password string

	LoginTimeout   time.Duration
	ElementTimeout time.Duration
	VerifyTimeout  time.Duration
	VerifyInterval time.Duration

	MediaPollAttempts int
	MediaPollInterval time.Duration

	SubmitRounds int
	TypingChunk  int
	TypingDelay  time.Duration

	// StrictMedia turns a media undercount into MediaAttachFailed.
	StrictMedia bool
	// StrictCaption turns a caption readback mismatch into a hard failure.
	StrictCaption bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://x.com"
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 30 * time.Second
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = 10 * time.Second
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = 20 * time.Second
	}
	if c.VerifyInterval <= 0 {
		c.VerifyInterval = time.Second
	}
	if c.MediaPollAttempts <= 0 {
		c.MediaPollAttempts = 10
	}
	if c.MediaPollInterval <= 0 {
		c.MediaPollInterval = time.Second
	}
	if c.SubmitRounds <= 0 {
		c.SubmitRounds = 3
	}
	if c.TypingChunk <= 0 {
		c.TypingChunk = 4
	}
	if c.TypingDelay < 0 {
		c.TypingDelay = 0
	}
}
