package providers

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const probePrompt = "Diga apenas: OK"

// ProbeResult reports a one-shot connectivity check.
type ProbeResult struct {
	Provider string
	Model    string
	Reply    string
	Latency  time.Duration
}

// Probe sends a throwaway prompt on a fresh conversation.
func Probe(ctx context.Context, p Provider) (ProbeResult, error) {
	res := ProbeResult{Provider: p.Name(), Model: p.Model()}
	start := time.Now()
	conv, err := p.NewConversation(ctx, "")
	if err != nil {
		return res, fmt.Errorf("probe %s: %w", p.Name(), err)
	}
	reply, err := conv.Send(ctx, nil, probePrompt)
	res.Latency = time.Since(start)
	if err != nil {
		return res, fmt.Errorf("probe %s: %w", p.Name(), err)
	}
	res.Reply = strings.TrimSpace(reply)
	return res, nil
}
