// Package notify pushes run summaries to an optional messaging channel.
package notify

// TextNotifier is a minimal text notification interface. Components depend
// on it instead of a concrete transport.
type TextNotifier interface {
	SendText(text string) error
}

// Nop discards every message. Used when no channel is configured.
type Nop struct{}

func (Nop) SendText(string) error { return nil }
