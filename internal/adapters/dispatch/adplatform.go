package dispatch

import "context"

// Client is the ad platform control surface the dispatcher acts through.
// Implementations are expected to be idempotent per decision.
type Client interface {
	AdjustBid(ctx context.Context, campaignID string, multiplier float64) error
	PauseCreative(ctx context.Context, creativeID string) error
	SetFrequencyCap(ctx context.Context, entityID string, maxImpressions int) error
}

// NoopClient acknowledges every call without side effects. It stands in
// when no platform credentials are configured.
type NoopClient struct{}

func (NoopClient) AdjustBid(context.Context, string, float64) error   { return nil }
func (NoopClient) PauseCreative(context.Context, string) error        { return nil }
func (NoopClient) SetFrequencyCap(context.Context, string, int) error { return nil }
