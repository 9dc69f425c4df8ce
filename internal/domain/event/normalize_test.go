package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/adkite/tempograph/internal/domain/dedupe"
	event "github.com/adkite/tempograph/internal/domain/event"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newNormalizer() *event.Normalizer {
	return event.NewNormalizer(dedupe.NewMemoryIndex(), event.WithClock(func() time.Time { return fixedNow }))
}

func rawImpression(episodeID string) event.RawMessage {
	return event.RawMessage{
		Topic:     event.TopicImpressions,
		Partition: 1,
		Offset:    42,
		Value: []byte(`{"episode_id":"` + episodeID + `","occurred_at":"2026-03-01T10:30:00Z",` +
			`"payload":{"campaign_id":"camp_1","creative_id":"crt_1","device_id":"dev_1"}}`),
	}
}

func TestNormalize(t *testing.T) {
	Convey("Given a normalizer with a fixed clock", t, func() {
		n := newNormalizer()
		ctx := context.Background()

		Convey("When normalizing a well-formed impression", func() {
			ep, err := n.Normalize(ctx, rawImpression("ep-1"))

			Convey("Then both temporal stamps are set", func() {
				So(err, ShouldBeNil)
				So(ep.ID, ShouldEqual, "ep-1")
				So(ep.Type, ShouldEqual, event.TypeImpression)
				So(ep.OccurredAt, ShouldEqual, time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC))
				So(ep.RecordedAt, ShouldEqual, fixedNow)
				So(ep.Partition, ShouldEqual, 1)
				So(ep.Offset, ShouldEqual, 42)
				So(ep.Payload.CampaignID, ShouldEqual, "camp_1")
			})
		})

		Convey("When the same episode id arrives twice", func() {
			_, err := n.Normalize(ctx, rawImpression("ep-dup"))
			So(err, ShouldBeNil)

			_, err = n.Normalize(ctx, rawImpression("ep-dup"))

			Convey("Then the replay is reported as a duplicate", func() {
				So(err, ShouldWrap, event.ErrDuplicateEpisode)
			})

			Convey("And unrecording makes it ingestible again", func() {
				n.Unrecord(ctx, "ep-dup")
				_, err := n.Normalize(ctx, rawImpression("ep-dup"))
				So(err, ShouldBeNil)
			})
		})

		Convey("When the body is not JSON", func() {
			_, err := n.Normalize(ctx, event.RawMessage{Topic: event.TopicClicks, Value: []byte("not json")})

			So(err, ShouldWrap, event.ErrMalformedEvent)
		})

		Convey("When the episode id is missing", func() {
			_, err := n.Normalize(ctx, event.RawMessage{
				Topic: event.TopicClicks,
				Value: []byte(`{"occurred_at":"2026-03-01T10:30:00Z","payload":{"campaign_id":"camp_1"}}`),
			})

			So(err, ShouldWrap, event.ErrMalformedEvent)
		})

		Convey("When occurred_at is absent", func() {
			_, err := n.Normalize(ctx, event.RawMessage{
				Topic: event.TopicClicks,
				Value: []byte(`{"episode_id":"ep-2","payload":{"campaign_id":"camp_1"}}`),
			})

			So(err, ShouldWrap, event.ErrMissingTimestamp)
		})

		Convey("When occurred_at is unparseable", func() {
			_, err := n.Normalize(ctx, event.RawMessage{
				Topic: event.TopicClicks,
				Value: []byte(`{"episode_id":"ep-3","occurred_at":"yesterday","payload":{"campaign_id":"camp_1"}}`),
			})

			So(err, ShouldWrap, event.ErrMissingTimestamp)
		})

		Convey("When the embedded type contradicts the topic", func() {
			_, err := n.Normalize(ctx, event.RawMessage{
				Topic: event.TopicClicks,
				Value: []byte(`{"episode_id":"ep-4","event_type":"conversion","occurred_at":"2026-03-01T10:30:00Z",` +
					`"payload":{"campaign_id":"camp_1"}}`),
			})

			So(err, ShouldWrap, event.ErrMalformedEvent)
		})

		Convey("When a message arrives off-topic with an embedded type", func() {
			ep, err := n.Normalize(ctx, event.RawMessage{
				Topic: "direct",
				Value: []byte(`{"episode_id":"ep-5","event_type":"conversion","occurred_at":"2026-03-01T10:30:00Z",` +
					`"payload":{"campaign_id":"camp_1"}}`),
			})

			Convey("Then the embedded type routes it", func() {
				So(err, ShouldBeNil)
				So(ep.Type, ShouldEqual, event.TypeConversion)
			})
		})
	})
}

func TestNormalize_RequiredFields(t *testing.T) {
	Convey("Given per-type payload requirements", t, func() {
		n := newNormalizer()
		ctx := context.Background()

		send := func(topic, payload string) error {
			_, err := n.Normalize(ctx, event.RawMessage{
				Topic: topic,
				Value: []byte(`{"episode_id":"` + topic + `-ep","occurred_at":"2026-03-01T10:30:00Z","payload":` + payload + `}`),
			})
			return err
		}

		Convey("Then a bid request needs a device or placement", func() {
			So(send(event.TopicBidRequests, `{"bid_price_cpm":12.5}`), ShouldWrap, event.ErrMalformedEvent)
		})

		Convey("Then an impression needs campaign and creative", func() {
			So(send(event.TopicImpressions, `{"campaign_id":"camp_1"}`), ShouldWrap, event.ErrMalformedEvent)
		})

		Convey("Then a viewability score outside [0, 1] is rejected", func() {
			So(send(event.TopicViewability, `{"creative_id":"crt_1","viewability_score":1.2}`), ShouldWrap, event.ErrMalformedEvent)
		})

		Convey("Then a conversion needs a campaign", func() {
			So(send(event.TopicConversions, `{"device_id":"dev_1"}`), ShouldWrap, event.ErrMalformedEvent)
		})
	})
}
