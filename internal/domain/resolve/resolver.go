// Package resolve maps normalized episodes onto canonical graph entities
// and the relationship intents they imply.
package resolve

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/adkite/tempograph/internal/domain/event"
	"github.com/adkite/tempograph/internal/domain/graph"
	"github.com/adkite/tempograph/internal/domain/scoring"
	"github.com/adkite/tempograph/pkg/metrics"
)

// Canonical entity key prefixes, one per kind.
const (
	prefixDevice    = "dev_"
	prefixCampaign  = "cmp_"
	prefixCreative  = "crt_"
	prefixContent   = "cnt_"
	prefixPlacement = "plc_"
)

const defaultConfidenceThreshold = 0.75

// Payload extension keys consulted when the deterministic device key is
// absent.
const (
	extraFingerprint  = "device_fingerprint"
	extraMatchSignals = "match_signals"
)

// Resolution is the resolver's output: the entities an episode touches and
// the temporal relationships it asserts, ready for the graph mutator.
type Resolution struct {
	Entities []graph.EntityIntent
	Facts    []graph.FactIntent
	// Confidence is 1.0 for fully deterministic resolutions, otherwise the
	// lowest probabilistic match confidence that was accepted.
	Confidence float64
}

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithConfidenceThreshold sets the minimum accepted match confidence for
// probabilistic resolution.
func WithConfidenceThreshold(t float64) Option {
	return func(r *Resolver) {
		if t >= 0 && t <= 1 {
			r.threshold = t
		}
	}
}

// Resolver resolves episode payload identifiers to canonical entity keys.
// Stable platform identifiers resolve deterministically by hashing; device
// identity without a hardware ID falls back to the scoring boundary.
type Resolver struct {
	scorer    scoring.Scorer
	threshold float64
}

// NewResolver creates a resolver using the given match scorer.
func NewResolver(scorer scoring.Scorer, opts ...Option) *Resolver {
	r := &Resolver{
		scorer:    scorer,
		threshold: defaultConfidenceThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces the resolution for one episode. The same payload always
// resolves to the same entity keys, so replays converge on the same graph
// nodes. ErrAmbiguousEntity is returned when identity cannot be established
// with enough confidence; the episode must then be deferred, not dropped.
func (r *Resolver) Resolve(ctx context.Context, ep event.Episode) (Resolution, error) {
	start := time.Now()
	defer func() {
		metrics.RecordResolveLatency(float64(time.Since(start).Milliseconds()))
	}()

	res := Resolution{Confidence: 1.0}
	p := ep.Payload

	deviceKey := ""
	switch {
	case p.DeviceID != "":
		deviceKey = EntityKey(graph.KindDevice, p.DeviceID)
	case needsDevice(ep.Type):
		key, confidence, err := r.matchDevice(ctx, p)
		if err != nil {
			return Resolution{}, err
		}
		deviceKey = key
		if confidence < res.Confidence {
			res.Confidence = confidence
		}
	}

	campaignKey := keyIfPresent(graph.KindCampaign, p.CampaignID)
	creativeKey := keyIfPresent(graph.KindCreative, p.CreativeID)
	contentKey := keyIfPresent(graph.KindContent, p.ContentID)
	placementKey := keyIfPresent(graph.KindPlacement, p.PlacementID)

	addEntity := func(key string, kind graph.Kind, attrs map[string]any) {
		if key == "" {
			return
		}
		res.Entities = append(res.Entities, graph.EntityIntent{
			ID:         key,
			Kind:       kind,
			Attributes: attrs,
		})
		res.Facts = append(res.Facts, graph.FactIntent{
			Subject:  ep.ID,
			Relation: graph.RelationInvolves,
			Object:   key,
		})
	}

	addEntity(deviceKey, graph.KindDevice, deviceAttrs(p))
	addEntity(campaignKey, graph.KindCampaign, campaignAttrs(ep))
	addEntity(creativeKey, graph.KindCreative, creativeAttrs(ep))
	addEntity(contentKey, graph.KindContent, nil)
	addEntity(placementKey, graph.KindPlacement, nil)

	if len(res.Entities) == 0 {
		return Resolution{}, fmt.Errorf("%w: episode %s names no resolvable identity", ErrAmbiguousEntity, ep.ID)
	}

	res.Facts = append(res.Facts, derivedFacts(ep.Type, deviceKey, campaignKey, creativeKey, contentKey, placementKey, p)...)

	return res, nil
}

// EntityKey returns the canonical key for a raw platform identifier:
// a kind prefix plus the FNV-1a hash of the raw ID.
func EntityKey(kind graph.Kind, rawID string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(rawID))
	return fmt.Sprintf("%s%016x", kindPrefix(kind), h.Sum64())
}

func kindPrefix(kind graph.Kind) string {
	switch kind {
	case graph.KindDevice:
		return prefixDevice
	case graph.KindCampaign:
		return prefixCampaign
	case graph.KindCreative:
		return prefixCreative
	case graph.KindContent:
		return prefixContent
	case graph.KindPlacement:
		return prefixPlacement
	}
	return "ent_"
}

func keyIfPresent(kind graph.Kind, rawID string) string {
	if rawID == "" {
		return ""
	}
	return EntityKey(kind, rawID)
}

// needsDevice reports whether the event type implies a device identity
// worth resolving probabilistically when the hardware ID is missing.
func needsDevice(t event.Type) bool {
	switch t {
	case event.TypeBidRequest, event.TypeImpression, event.TypeViewability, event.TypeCompletion:
		return true
	}
	return false
}

// matchDevice resolves a device without a hardware ID from its fingerprint
// signals via the scoring boundary.
func (r *Resolver) matchDevice(ctx context.Context, p event.Payload) (string, float64, error) {
	fingerprint, _ := p.Extra[extraFingerprint].(string)
	if fingerprint == "" {
		return "", 0, fmt.Errorf("%w: no device id and no fingerprint", ErrAmbiguousEntity)
	}

	candidate := EntityKey(graph.KindDevice, fingerprint)
	result, err := r.scorer.Score(ctx, scoring.Input{
		CandidateKey: candidate,
		Kind:         string(graph.KindDevice),
		Signals:      matchSignals(p),
	})
	if err != nil {
		return "", 0, fmt.Errorf("score device candidate: %w", err)
	}
	if result.Confidence < r.threshold {
		return "", 0, fmt.Errorf("%w: device match confidence %.2f below threshold %.2f",
			ErrAmbiguousEntity, result.Confidence, r.threshold)
	}
	return candidate, result.Confidence, nil
}

// matchSignals extracts the normalized similarity features attached to the
// payload. Unknown shapes are ignored rather than failing resolution.
func matchSignals(p event.Payload) map[string]float64 {
	raw, ok := p.Extra[extraMatchSignals].(map[string]any)
	if !ok {
		return nil
	}
	signals := make(map[string]float64, len(raw))
	for name, v := range raw {
		if f, ok := v.(float64); ok {
			signals[name] = f
		}
	}
	return signals
}

// deviceAttrs carries the device-side observations worth merging onto the
// entity record.
func deviceAttrs(p event.Payload) map[string]any {
	if fp, ok := p.Extra[extraFingerprint].(string); ok && fp != "" {
		return map[string]any{"fingerprint": fp}
	}
	return nil
}

func campaignAttrs(ep event.Episode) map[string]any {
	if ep.Type == event.TypeBidRequest && ep.Payload.BidPriceCPM > 0 {
		return map[string]any{"last_bid_price_cpm": ep.Payload.BidPriceCPM}
	}
	return nil
}

func creativeAttrs(ep event.Episode) map[string]any {
	switch ep.Type {
	case event.TypeViewability:
		return map[string]any{"last_viewability_score": ep.Payload.ViewabilityScore}
	case event.TypeCompletion:
		return map[string]any{"last_completed": ep.Payload.Completed}
	}
	return nil
}

// derivedFacts builds the entity-to-entity edges each event type implies.
func derivedFacts(t event.Type, device, campaign, creative, content, placement string, p event.Payload) []graph.FactIntent {
	var facts []graph.FactIntent
	add := func(subject string, rel graph.Relation, object string, value map[string]any) {
		if subject == "" || object == "" {
			return
		}
		facts = append(facts, graph.FactIntent{Subject: subject, Relation: rel, Object: object, Value: value})
	}

	switch t {
	case event.TypeBidRequest:
		add(campaign, graph.RelationInvolves, placement, map[string]any{"bid_price_cpm": p.BidPriceCPM})
	case event.TypeImpression:
		add(campaign, graph.RelationTargets, device, nil)
		add(creative, graph.RelationDisplays, content, nil)
	case event.TypeViewability:
		add(creative, graph.RelationViewedOn, device, map[string]any{"viewability_score": p.ViewabilityScore})
	case event.TypeCompletion:
		add(creative, graph.RelationViewedOn, device, map[string]any{
			"completed":     p.Completed,
			"watch_seconds": p.WatchSeconds,
		})
	case event.TypeClick, event.TypeConversion:
		add(campaign, graph.RelationTargets, device, nil)
	}
	return facts
}

// Describe renders a resolution for debug logging.
func (r Resolution) Describe() string {
	keys := make([]string, 0, len(r.Entities))
	for _, e := range r.Entities {
		keys = append(keys, e.ID)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
