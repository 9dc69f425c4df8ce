package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/adkite/tempograph/internal/adapters/http/api"
	"github.com/adkite/tempograph/internal/domain/graph"
	"github.com/adkite/tempograph/internal/domain/rules"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeDeps implements api.Dependencies with canned data.
type fakeDeps struct {
	mu          sync.Mutex
	published   map[string][][]byte
	backpressed bool
	rules       map[string]rules.Rule
	decisions   []rules.Decision
	communities []graph.Community
	snapshot    graph.Snapshot
	timeline    []graph.TimelineItem
}

func newFakeDeps() *fakeDeps {
	return &fakeDeps{
		published: make(map[string][][]byte),
		rules:     make(map[string]rules.Rule),
	}
}

func (f *fakeDeps) Publish(_ context.Context, topic, _ string, value []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.backpressed {
		return false
	}
	f.published[topic] = append(f.published[topic], value)
	return true
}

func (f *fakeDeps) Snapshot(_ context.Context, asOf time.Time, axis graph.TimeAxis) (graph.Snapshot, error) {
	s := f.snapshot
	s.AsOf = asOf
	s.Axis = axis
	return s, nil
}

func (f *fakeDeps) Timeline(_ context.Context, entityID string, w graph.Window) (*graph.Timeline, error) {
	if !w.Bounded() {
		return nil, graph.ErrUnboundedQuery
	}
	if entityID == "missing" {
		return nil, graph.ErrEntityNotFound
	}
	return graph.NewTimeline(f.timeline), nil
}

func (f *fakeDeps) Communities() []graph.Community { return f.communities }

func (f *fakeDeps) UpsertRule(r rules.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[r.ID] = r
	return nil
}

func (f *fakeDeps) RemoveRule(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[id]; !ok {
		return fmt.Errorf("%s: %w", id, rules.ErrRuleNotFound)
	}
	delete(f.rules, id)
	return nil
}

func (f *fakeDeps) Rules() []rules.Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]rules.Rule, 0, len(f.rules))
	for _, r := range f.rules {
		out = append(out, r)
	}
	return out
}

func (f *fakeDeps) Decisions(entityID string, _ graph.Window) []rules.Decision {
	var out []rules.Decision
	for _, d := range f.decisions {
		if entityID != "" && d.TargetEntityID != entityID {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (f *fakeDeps) GetStats() map[string]interface{} {
	return map[string]interface{}{"entities": 2}
}

func newTestServer(deps *fakeDeps) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(deps, deps).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func TestEventsEndpoint(t *testing.T) {
	Convey("Given the API over fake dependencies", t, func() {
		deps := newFakeDeps()
		ts := newTestServer(deps)
		defer ts.Close()

		Convey("When posting a valid impression", func() {
			body := `{"episode_id":"ep-1","event_type":"impression","occurred_at":"2026-03-01T10:00:00Z","payload":{"campaign_id":"camp-1","creative_id":"cr-1","device_id":"dev-1"}}`
			resp, err := http.Post(ts.URL+"/events", "application/json", bytes.NewBufferString(body))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it is accepted and published on the impressions topic", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
				So(deps.published["ctv_impressions"], ShouldHaveLength, 1)

				var ack map[string]string
				So(json.NewDecoder(resp.Body).Decode(&ack), ShouldBeNil)
				So(ack["episode_id"], ShouldEqual, "ep-1")
			})
		})

		Convey("When posting an event without occurred_at", func() {
			body := `{"episode_id":"ep-2","event_type":"impression","payload":{"campaign_id":"c","creative_id":"cr"}}`
			resp, err := http.Post(ts.URL+"/events", "application/json", bytes.NewBufferString(body))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it is rejected", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(deps.published, ShouldBeEmpty)
			})
		})

		Convey("When posting an unknown event type", func() {
			body := `{"episode_id":"ep-3","event_type":"pageview","occurred_at":"2026-03-01T10:00:00Z"}`
			resp, err := http.Post(ts.URL+"/events", "application/json", bytes.NewBufferString(body))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the transport is saturated", func() {
			deps.backpressed = true
			body := `{"episode_id":"ep-4","event_type":"click","occurred_at":"2026-03-01T10:00:00Z","payload":{"campaign_id":"camp-1"}}`
			resp, err := http.Post(ts.URL+"/events", "application/json", bytes.NewBufferString(body))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the caller sees backpressure", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusTooManyRequests)
			})
		})
	})
}

func TestRulesEndpoints(t *testing.T) {
	Convey("Given the API over fake dependencies", t, func() {
		deps := newFakeDeps()
		ts := newTestServer(deps)
		defer ts.Close()
		client := ts.Client()

		putRule := func(id, body string) *http.Response {
			req, err := http.NewRequest(http.MethodPut, ts.URL+"/rules/"+id, bytes.NewBufferString(body))
			So(err, ShouldBeNil)
			resp, err := client.Do(req)
			So(err, ShouldBeNil)
			return resp
		}

		validRule := `{
			"condition": {"metric": "avg_viewability", "comparator": "lt", "threshold": 0.5},
			"action": "pause_creative",
			"confidence_threshold": 0.6,
			"window": "24h",
			"target_kind": "creative",
			"enabled": true
		}`

		Convey("When upserting a valid rule", func() {
			resp := putRule("low-view", validRule)
			defer resp.Body.Close()

			Convey("Then it is stored under the path id", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(deps.rules, ShouldContainKey, "low-view")
				So(deps.rules["low-view"].Window, ShouldEqual, 24*time.Hour)
			})
		})

		Convey("When upserting a rule with a malformed window", func() {
			resp := putRule("bad-window", `{"condition":{"metric":"ctr","comparator":"lt","threshold":0.1},"action":"custom","window":"yesterday","target_kind":"campaign"}`)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When deleting an existing rule", func() {
			So(deps.UpsertRule(rules.Rule{
				ID:        "doomed",
				Condition: rules.Condition{Metric: rules.MetricCTR, Comparator: rules.CompareLT, Threshold: 0.1},
				Action:    rules.ActionCustom, Window: time.Hour, TargetKind: graph.KindCampaign,
			}), ShouldBeNil)

			req, err := http.NewRequest(http.MethodDelete, ts.URL+"/rules/doomed", nil)
			So(err, ShouldBeNil)
			resp, err := client.Do(req)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(deps.rules, ShouldNotContainKey, "doomed")
		})

		Convey("When deleting an unknown rule", func() {
			req, err := http.NewRequest(http.MethodDelete, ts.URL+"/rules/ghost", nil)
			So(err, ShouldBeNil)
			resp, err := client.Do(req)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})

		Convey("When listing rules", func() {
			resp := putRule("r1", validRule)
			resp.Body.Close()

			listResp, err := client.Get(ts.URL + "/rules")
			So(err, ShouldBeNil)
			defer listResp.Body.Close()

			var listed []rules.Rule
			So(json.NewDecoder(listResp.Body).Decode(&listed), ShouldBeNil)
			So(listed, ShouldHaveLength, 1)
			So(listed[0].ID, ShouldEqual, "r1")
		})
	})
}

func TestReadEndpoints(t *testing.T) {
	Convey("Given the API over fake dependencies", t, func() {
		deps := newFakeDeps()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		deps.snapshot = graph.Snapshot{
			Entities: []*graph.Entity{{ID: "dev_a", Kind: graph.KindDevice}},
			Facts:    []graph.Fact{{UUID: "f-1", Subject: "cmp_a", Relation: graph.RelationTargets, Object: "dev_a", ValidFrom: now}},
		}
		deps.decisions = []rules.Decision{
			{ID: "d-1", TargetEntityID: "crt_a", Action: rules.ActionPauseCreative},
			{ID: "d-2", TargetEntityID: "crt_b", Action: rules.ActionPauseCreative},
		}
		deps.communities = []graph.Community{{ID: "com_cmp_a", Members: []string{"cmp_a", "dev_a"}}}
		deps.timeline = []graph.TimelineItem{{OccurredAt: now}}

		ts := newTestServer(deps)
		defer ts.Close()

		Convey("When requesting a business-time snapshot", func() {
			resp, err := http.Get(ts.URL + "/snapshot?as_of=2026-03-01T12:00:00Z")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			var snap graph.Snapshot
			So(json.NewDecoder(resp.Body).Decode(&snap), ShouldBeNil)
			So(snap.Axis, ShouldEqual, graph.AxisBusinessTime)
			So(snap.Entities, ShouldHaveLength, 1)
			So(snap.Facts, ShouldHaveLength, 1)
		})

		Convey("When requesting a snapshot on an unknown axis", func() {
			resp, err := http.Get(ts.URL + "/snapshot?axis=galactic")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When requesting a bounded timeline", func() {
			resp, err := http.Get(ts.URL + "/entities/dev_a/timeline?from=2026-03-01T00:00:00Z&to=2026-03-02T00:00:00Z")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			var body struct {
				EntityID string               `json:"entity_id"`
				Items    []graph.TimelineItem `json:"items"`
			}
			So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
			So(body.EntityID, ShouldEqual, "dev_a")
			So(body.Items, ShouldHaveLength, 1)
		})

		Convey("When requesting a timeline without a window", func() {
			resp, err := http.Get(ts.URL + "/entities/dev_a/timeline")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When requesting a timeline for an unknown entity", func() {
			resp, err := http.Get(ts.URL + "/entities/missing/timeline?from=2026-03-01T00:00:00Z&to=2026-03-02T00:00:00Z")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})

		Convey("When filtering decisions by entity", func() {
			resp, err := http.Get(ts.URL + "/decisions?entity_id=crt_a")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			var decisions []rules.Decision
			So(json.NewDecoder(resp.Body).Decode(&decisions), ShouldBeNil)
			So(decisions, ShouldHaveLength, 1)
			So(decisions[0].ID, ShouldEqual, "d-1")
		})

		Convey("When listing communities", func() {
			resp, err := http.Get(ts.URL + "/communities")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			var communities []graph.Community
			So(json.NewDecoder(resp.Body).Decode(&communities), ShouldBeNil)
			So(communities, ShouldHaveLength, 1)
			So(communities[0].ID, ShouldEqual, "com_cmp_a")
		})

		Convey("When checking health and stats", func() {
			resp, err := http.Get(ts.URL + "/healthz")
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			statsResp, err := http.Get(ts.URL + "/stats")
			So(err, ShouldBeNil)
			defer statsResp.Body.Close()

			var stats map[string]any
			So(json.NewDecoder(statsResp.Body).Decode(&stats), ShouldBeNil)
			So(stats["entities"], ShouldEqual, 2)
		})
	})
}
