package scoring_test

import (
	"context"
	"testing"
	"time"

	scoring "github.com/adkite/tempograph/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryScorer_Score(t *testing.T) {
	Convey("Given a new in-memory scorer", t, func() {
		scorer := scoring.NewInMemoryScorer(
			scoring.WithSignalWeights(map[string]float64{
				"ip_match":          1.0,
				"ua_match":          0.8,
				"household_overlap": 0.6,
			}, 1.0),
			scoring.WithLatencyRange(time.Millisecond, 2*time.Millisecond),
		)

		Convey("When scoring a candidate with strong signals", func() {
			input := scoring.Input{
				CandidateKey: "dev_abc",
				Kind:         "device",
				Signals: map[string]float64{
					"ip_match": 1.0,
					"ua_match": 1.0,
				},
			}

			Convey("Then it should return a high confidence", func() {
				result, err := scorer.Score(context.Background(), input)
				So(err, ShouldBeNil)
				So(result.CandidateKey, ShouldEqual, "dev_abc")
				So(result.Confidence, ShouldEqual, 1.0)
			})
		})

		Convey("When scoring a candidate with mixed signals", func() {
			input := scoring.Input{
				CandidateKey: "dev_xyz",
				Kind:         "device",
				Signals: map[string]float64{
					"ip_match":          1.0, // weight 1.0
					"household_overlap": 0.0, // weight 0.6
				},
			}

			Convey("Then it should compute the weighted average", func() {
				result, err := scorer.Score(context.Background(), input)
				So(err, ShouldBeNil)
				// (1.0*1.0 + 0.0*0.6) / (1.0 + 0.6) = 0.625
				So(result.Confidence, ShouldAlmostEqual, 0.625, 0.0001)
			})
		})

		Convey("When scoring a candidate with an unknown signal", func() {
			input := scoring.Input{
				CandidateKey: "dev_unk",
				Signals:      map[string]float64{"novel_signal": 0.5},
			}

			Convey("Then it should fall back to the default weight", func() {
				result, err := scorer.Score(context.Background(), input)
				So(err, ShouldBeNil)
				So(result.Confidence, ShouldAlmostEqual, 0.5, 0.0001)
			})
		})

		Convey("When scoring a candidate with no signals", func() {
			input := scoring.Input{CandidateKey: "dev_none"}

			Convey("Then confidence should be zero", func() {
				result, err := scorer.Score(context.Background(), input)
				So(err, ShouldBeNil)
				So(result.Confidence, ShouldEqual, 0)
			})
		})

		Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			Convey("Then Score should return the context error", func() {
				_, err := scorer.Score(ctx, scoring.Input{
					CandidateKey: "dev_cancelled",
					Signals:      map[string]float64{"ip_match": 1.0},
				})
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "context cancelled")
			})
		})
	})
}

func TestInMemoryScorer_SetSignalWeight(t *testing.T) {
	Convey("Given a scorer with adjustable weights", t, func() {
		scorer := scoring.NewInMemoryScorer(
			scoring.WithLatencyRange(time.Millisecond, 2*time.Millisecond),
		)
		scorer.SetSignalWeight("ip_match", 2.0)

		Convey("When scoring with the adjusted weight", func() {
			result, err := scorer.Score(context.Background(), scoring.Input{
				CandidateKey: "dev_w",
				Signals: map[string]float64{
					"ip_match": 1.0, // weight 2.0
					"ua_match": 0.0, // default weight 1.0
				},
			})

			Convey("Then the weight should influence the confidence", func() {
				So(err, ShouldBeNil)
				// (1.0*2.0 + 0.0*1.0) / 3.0
				So(result.Confidence, ShouldAlmostEqual, 2.0/3.0, 0.0001)
			})
		})
	})
}
