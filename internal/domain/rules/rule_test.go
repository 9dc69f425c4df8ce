package rules_test

import (
	"testing"
	"time"

	"github.com/adkite/tempograph/internal/domain/graph"
	rules "github.com/adkite/tempograph/internal/domain/rules"
	. "github.com/smartystreets/goconvey/convey"
)

func bidAdjustRule(params map[string]any) rules.Rule {
	return rules.Rule{
		ID: "raise-strong-performers",
		Condition: rules.Condition{
			Metric:     rules.MetricCTR,
			Comparator: rules.CompareGT,
			Threshold:  0.02,
		},
		Action:              rules.ActionAdjustBidPrice,
		ActionParams:        params,
		ConfidenceThreshold: 0.5,
		Window:              time.Hour,
		TargetKind:          graph.KindCampaign,
		Enabled:             true,
	}
}

func TestRule_Validate(t *testing.T) {
	Convey("Given rules whose actions carry parameters", t, func() {
		Convey("When adjust_bid_price has no multiplier", func() {
			err := bidAdjustRule(nil).Validate()

			Convey("Then the rule is rejected before it can emit undispatchable decisions", func() {
				So(err, ShouldWrap, rules.ErrInvalidRule)
			})
		})

		Convey("When adjust_bid_price has a non-numeric multiplier", func() {
			err := bidAdjustRule(map[string]any{"multiplier": "1.2"}).Validate()

			So(err, ShouldWrap, rules.ErrInvalidRule)
		})

		Convey("When adjust_bid_price has a numeric multiplier", func() {
			So(bidAdjustRule(map[string]any{"multiplier": 1.2}).Validate(), ShouldBeNil)
		})

		Convey("When cap_frequency has no max_impressions", func() {
			r := bidAdjustRule(nil)
			r.Action = rules.ActionCapFrequency

			So(r.Validate(), ShouldWrap, rules.ErrInvalidRule)
		})

		Convey("When cap_frequency has an integer max_impressions", func() {
			r := bidAdjustRule(map[string]any{"max_impressions": 3})
			r.Action = rules.ActionCapFrequency

			So(r.Validate(), ShouldBeNil)
		})

		Convey("When pause_creative carries no params", func() {
			r := bidAdjustRule(nil)
			r.Action = rules.ActionPauseCreative

			So(r.Validate(), ShouldBeNil)
		})
	})
}
