package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	dispatch "github.com/adkite/tempograph/internal/adapters/dispatch"
	"github.com/adkite/tempograph/internal/domain/rules"
	"github.com/adkite/tempograph/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeClient records platform calls and can fail a configured number of
// leading attempts.
type fakeClient struct {
	mu      sync.Mutex
	failFor int
	calls   []string
}

func (c *fakeClient) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	if len(c.calls) <= c.failFor {
		return errors.New("platform unavailable")
	}
	return nil
}

func (c *fakeClient) AdjustBid(_ context.Context, campaignID string, _ float64) error {
	return c.record("adjust_bid:" + campaignID)
}

func (c *fakeClient) PauseCreative(_ context.Context, creativeID string) error {
	return c.record("pause:" + creativeID)
}

func (c *fakeClient) SetFrequencyCap(_ context.Context, entityID string, _ int) error {
	return c.record("cap:" + entityID)
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// fakePublisher collects outbound messages per topic.
type fakePublisher struct {
	mu      sync.Mutex
	byTopic map[string][][]byte
	full    bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{byTopic: make(map[string][][]byte)}
}

func (p *fakePublisher) Enqueue(_ context.Context, topic, _ string, value []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return false
	}
	p.byTopic[topic] = append(p.byTopic[topic], value)
	return true
}

func (p *fakePublisher) published(topic string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byTopic[topic]
}

func pauseDecision() rules.Decision {
	return rules.Decision{
		ID:             "dec-1",
		RuleID:         "rule-1",
		TargetEntityID: "crt_abc",
		Action:         rules.ActionPauseCreative,
		MetricValue:    0.41,
		Confidence:     0.8,
		DecidedAt:      time.Now().UTC(),
	}
}

func TestDispatcher(t *testing.T) {
	Convey("Given a dispatcher over a fake platform", t, func() {
		ctx := context.Background()
		client := &fakeClient{}
		publisher := newFakePublisher()
		d := dispatch.NewDispatcher(client, publisher,
			dispatch.WithBackoffBase(time.Millisecond),
			dispatch.WithMaxRetries(2))

		Convey("When a pause decision dispatches cleanly", func() {
			err := d.Dispatch(ctx, pauseDecision())

			Convey("Then the platform is called once and the record published", func() {
				So(err, ShouldBeNil)
				So(client.callCount(), ShouldEqual, 1)

				records := publisher.published(dispatch.TopicOptimizations)
				So(records, ShouldHaveLength, 1)
				var got rules.Decision
				So(json.Unmarshal(records[0], &got), ShouldBeNil)
				So(got.ID, ShouldEqual, "dec-1")
			})
		})

		Convey("When the platform fails once then recovers", func() {
			client.failFor = 1
			err := d.Dispatch(ctx, pauseDecision())

			Convey("Then the retry succeeds", func() {
				So(err, ShouldBeNil)
				So(client.callCount(), ShouldEqual, 2)
				So(publisher.published(dispatch.TopicOptimizations), ShouldHaveLength, 1)
			})
		})

		Convey("When the platform keeps failing", func() {
			client.failFor = 100
			err := d.Dispatch(ctx, pauseDecision())

			Convey("Then retries exhaust, an alert goes out, and the error surfaces", func() {
				So(err, ShouldWrap, dispatch.ErrDispatchFailed)
				So(client.callCount(), ShouldEqual, 3)
				So(publisher.published(dispatch.TopicOptimizations), ShouldBeEmpty)
				So(publisher.published(dispatch.TopicAlerts), ShouldHaveLength, 1)
			})
		})

		Convey("When a bid adjustment carries its multiplier", func() {
			dec := pauseDecision()
			dec.Action = rules.ActionAdjustBidPrice
			dec.TargetEntityID = "cmp_xyz"
			dec.ActionParams = map[string]any{"multiplier": 0.85}

			So(d.Dispatch(ctx, dec), ShouldBeNil)
			So(client.callCount(), ShouldEqual, 1)
		})

		Convey("When a bid adjustment is missing its multiplier", func() {
			dec := pauseDecision()
			dec.Action = rules.ActionAdjustBidPrice
			dec.ActionParams = nil

			err := d.Dispatch(ctx, dec)

			Convey("Then it fails without succeeding on retry", func() {
				So(err, ShouldWrap, dispatch.ErrDispatchFailed)
				So(publisher.published(dispatch.TopicAlerts), ShouldHaveLength, 1)
			})
		})

		Convey("When a custom decision dispatches", func() {
			dec := pauseDecision()
			dec.Action = rules.ActionCustom

			So(d.Dispatch(ctx, dec), ShouldBeNil)

			Convey("Then it skips the platform and lands on the recommendations topic", func() {
				So(client.callCount(), ShouldEqual, 0)
				So(publisher.published(dispatch.TopicRecommendations), ShouldHaveLength, 1)
			})
		})

		Convey("When the outbound topic refuses the record", func() {
			publisher.full = true
			err := d.Dispatch(ctx, pauseDecision())

			Convey("Then the failure is reported, not swallowed", func() {
				So(err, ShouldWrap, dispatch.ErrPublisherFull)
			})
		})

		Convey("When an operational alert is raised", func() {
			So(d.Alert(ctx, "rules.engine", "rule r1 failed 3 consecutive ticks"), ShouldBeNil)

			records := publisher.published(dispatch.TopicAlerts)
			So(records, ShouldHaveLength, 1)
			So(string(records[0]), ShouldContainSubstring, "rules.engine")
		})
	})
}
