package signal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Callout is a human-readable summary of one active signal, for surfacing
// the strongest current evidence on an entity.
type Callout struct {
	SignalID   string    `json:"signal_id"`
	ClaimType  string    `json:"claim_type"`
	Confidence float64   `json:"confidence"` // effective (decayed) confidence
	Source     Source    `json:"source"`
	Summary    string    `json:"summary"`
	ObservedAt time.Time `json:"observed_at"`
}

const calloutPayloadMax = 120

// Callouts returns the entity's top active signals by effective confidence,
// strongest first.
func (l *Ledger) Callouts(ctx context.Context, entityID string, limit int, decayRatePerDay float64) ([]Callout, error) {
	signals, err := l.ActiveByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	callouts := make([]Callout, 0, len(signals))
	for _, sig := range signals {
		if sig.Retraction {
			continue // retractions discount other evidence, they are not evidence
		}
		callouts = append(callouts, Callout{
			SignalID:   sig.ID,
			ClaimType:  sig.ClaimType,
			Confidence: sig.EffectiveConfidence(now, decayRatePerDay),
			Source:     sig.Source,
			Summary:    summarize(sig),
			ObservedAt: sig.CreatedAt,
		})
	}

	sort.SliceStable(callouts, func(i, j int) bool {
		return callouts[i].Confidence > callouts[j].Confidence
	})

	if limit > 0 && len(callouts) > limit {
		callouts = callouts[:limit]
	}
	return callouts, nil
}

// summarize renders one signal as a single line: claim, strength, evidence.
func summarize(sig *Signal) string {
	claim := strings.ReplaceAll(sig.ClaimType, "_", " ")
	payload := strings.TrimSpace(sig.Payload)
	if len(payload) > calloutPayloadMax {
		payload = payload[:calloutPayloadMax-1] + "…"
	}
	if payload == "" {
		return fmt.Sprintf("%s (%s, %.0f%%)", claim, sig.Source, sig.Confidence*100)
	}
	return fmt.Sprintf("%s (%s, %.0f%%): %s", claim, sig.Source, sig.Confidence*100, payload)
}
