package capture

import "context"

// Token is a platform grant authorizing screen capture for one session.
type Token interface {
	// Revoked is closed once the grant has ended, either because the platform or user
	// ended it or because Stop was called.
	Revoked() <-chan struct{}
	// Stop ends capture on the platform side and releases the grant.
	Stop() error
}

// TokenResult is the outcome of a token request.
// A denied request carries ErrPermissionDenied.
type TokenResult struct {
	Token Token
	Err   error
}

// Display is a virtual display mirroring the screen into an encoder's input.
type Display interface {
	Release() error
}

// Platform provides capture grants and virtual displays.
type Platform interface {
	// RequestToken asks for a capture grant. It must not block; deliver is called exactly once,
	// from any goroutine. Cancelling ctx abandons the request.
	RequestToken(ctx context.Context, deliver func(TokenResult))
	// CreateDisplay binds a virtual display for token to the input of encoder.
	CreateDisplay(token Token, encoder Encoder, settings Settings) (Display, error)
	// SupportsPause reports whether encoders on this platform can pause and resume.
	SupportsPause() bool
}

// Encoder consumes display frames (and optionally audio) and writes a container file.
type Encoder interface {
	Prepare(outputFile string, settings Settings) error
	Start() error
	Pause() error
	Resume() error
	Stop() error
	Release() error
}

// EncoderFactory creates a fresh Encoder for every recording.
type EncoderFactory func() Encoder
