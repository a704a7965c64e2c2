// Package tts defines the boundary to the external text-to-speech service.
// The engine never synthesizes audio itself; it hands scene text to a
// Renderer and stores the opaque reference that comes back.
package tts

import "context"

// Request is one narration unit to synthesize.
type Request struct {
	Text  string
	Voice string
}

// Rendered points at synthesized audio in external storage. AudioRef is
// opaque to the engine; Duration is the narrated length in seconds.
type Rendered struct {
	AudioRef string
	Duration float64
}

// Renderer synthesizes narration audio.
type Renderer interface {
	Render(ctx context.Context, req Request) (Rendered, error)
}

// RenderFunc adapts a function to the Renderer interface.
type RenderFunc func(ctx context.Context, req Request) (Rendered, error)

func (f RenderFunc) Render(ctx context.Context, req Request) (Rendered, error) {
	return f(ctx, req)
}
