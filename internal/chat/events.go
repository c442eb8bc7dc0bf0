// Package chat orchestrates one retrieval-augmented chat request:
// embed the question, retrieve the nearest rule chunks, assemble the
// prompt, and stream the answer as a sequence of typed events.
package chat

// Source describes one retrieved chunk surfaced to the caller before the
// answer streams.
type Source struct {
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// Event is one element of a chat response stream. Every stream opens
// with exactly one Sources event and closes with exactly one Done or
// Error event; Token events only ever appear between the two.
type Event interface {
	event()
}

// Sources lists the retrieved chunks backing the answer. Emitted exactly
// once per request, before any Token, even when empty.
type Sources struct {
	Sources []Source
}

// Token is one incremental answer fragment, in provider emission order.
type Token struct {
	Text string
}

// Done marks successful stream exhaustion.
type Done struct{}

// Error terminates the stream with a human-readable message. Tokens
// already emitted are not retracted.
type Error struct {
	Message string
}

func (Sources) event() {}
func (Token) event()   {}
func (Done) event()    {}
func (Error) event()   {}
