// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Text: "السلام"}
//	text, _ := p.Transcribe(ctx, stt.Request{Audio: clip})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hifz/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Transcribe.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Text, Err.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return "", p.Err
	}
	return p.Text, nil
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}

var _ stt.Provider = (*Provider)(nil)
