package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithMetricPrefix("test-prefix"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(10*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with empty or zero option values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithCustomLabels(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults should be kept and creation should succeed", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given metrics recording", t, func() {
		Convey("When recording ingestion metrics", func() {
			So(func() {
				RecordEpisodeIngested()
				RecordEpisodeDuplicate()
				RecordEpisodeMalformed()
				RecordEpisodeDeferred()
				RecordNormalizeLatency(1.5)
				RecordResolveLatency(0.5)
			}, ShouldNotPanic)
		})

		Convey("When recording graph store metrics", func() {
			So(func() {
				UpdateGraphEntitiesTotal(100)
				UpdateGraphFactsTotal(5000)
				RecordGraphFactClosed()
				RecordGraphWriteConflict()
				RecordGraphApplyLatency(3.0)
				RecordGraphQueryLatency(2.0)
			}, ShouldNotPanic)
		})

		Convey("When recording queue and worker metrics", func() {
			So(func() {
				UpdateQueueSize(1000)
				UpdateQueueCapacity(10000)
				UpdateQueueUtilization(0.1)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordOffsetCommit("3")
				UpdateWorkerActiveCount(8)
				RecordWorkerProcessingLatency(12.0)
				RecordWorkerError()
				RecordWorkerRetry()
			}, ShouldNotPanic)
		})

		Convey("When recording community metrics", func() {
			So(func() {
				RecordCommunityRun()
				RecordCommunityTimeout()
				RecordCommunityDuration(250.0)
				UpdateCommunitiesDetected(7)
				RecordCommunityMembership()
			}, ShouldNotPanic)
		})

		Convey("When recording rule engine metrics", func() {
			So(func() {
				RecordRuleEvaluation("decided")
				RecordRuleEvaluation("skipped")
				RecordRuleEvaluation("failed")
				RecordRuleTickDuration(40.0)
				RecordDecisionEmitted()
				UpdateActiveRuleCount(5)
				RecordMetricComputeTime(8.0)
			}, ShouldNotPanic)
		})

		Convey("When recording dispatch metrics", func() {
			So(func() {
				RecordDispatchAttempt()
				RecordDispatchRetry()
				RecordDispatchFailure()
				RecordDispatchLatency(60.0)
				RecordAlertPublished()
			}, ShouldNotPanic)
		})

		Convey("When recording HTTP and error metrics", func() {
			So(func() {
				RecordHTTPRequest("/rules", "PUT", "200")
				RecordHTTPRequestDuration("/rules", "PUT", "200", 4.0)
				RecordErrorByComponent("mutator", "write_conflict")
				RecordErrorByType("write_conflict", "medium")
				RecordErrorByEndpoint("/snapshot", "GET", "client_error")
				RecordErrorLatency("http", "client_error", 2.0)
			}, ShouldNotPanic)
		})

		Convey("When recording system metrics", func() {
			So(func() {
				UpdateSystemMemoryUsage(1024 * 1024)
				UpdateSystemGoroutineCount(42)
				RecordSystemGCPauseTime(1.2)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent metric writers", t, func() {
		done := make(chan bool, 10)

		for i := 0; i < 10; i++ {
			go func() {
				for j := 0; j < 100; j++ {
					RecordEpisodeIngested()
					UpdateQueueSize(j)
					RecordGraphApplyLatency(float64(j))
					RecordHTTPRequest("/snapshot", "GET", "200")
				}
				done <- true
			}()
		}

		for i := 0; i < 10; i++ {
			<-done
		}

		Convey("Then concurrent access should not panic", func() {
			So(true, ShouldBeTrue)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the package registry", t, func() {
		Convey("When fetching it", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
