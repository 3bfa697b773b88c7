package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// PrometheusSubscriber exports session-level crawl metrics. It owns its
// collectors so tests can register them against a private registry.
type PrometheusSubscriber struct {
	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	sessionsRunning  prometheus.Gauge
	sessionRuntime   prometheus.Histogram

	pages      *prometheus.CounterVec
	childLinks prometheus.Histogram

	scope     string
	succeeded int
	running   bool
}

// NewPrometheusSubscriber registers the collectors against the provided registry.
func NewPrometheusSubscriber(reg prometheus.Registerer) (*PrometheusSubscriber, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSubscriber{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_sessions_started_total",
			Help: "Total crawl sessions that have started.",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_sessions_finished_total",
			Help: "Total crawl sessions finished, partitioned by whether any page succeeded.",
		}, []string{"result"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_sessions_running",
			Help: "Current number of running sessions.",
		}),
		sessionRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_session_runtime_seconds",
			Help:    "Wall time per finished session.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_session_pages_total",
			Help: "Pages reported to subscribers, partitioned by scope and result.",
		}, []string{"scope", "result"}),
		childLinks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_page_child_links",
			Help:    "Eligible child links discovered per page.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsFinished,
		s.sessionsRunning,
		s.sessionRuntime,
		s.pages,
		s.childLinks,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Name implements progress.Subscriber.
func (s *PrometheusSubscriber) Name() string { return "prometheus" }

// OnSessionStarted implements progress.Subscriber.
func (s *PrometheusSubscriber) OnSessionStarted(_ context.Context, session crawler.SessionInfo) error {
	s.sessionsStarted.Inc()
	if !s.running {
		s.sessionsRunning.Inc()
		s.running = true
	}
	s.scope = session.Scope
	s.succeeded = 0
	return nil
}

// OnPageCompleted implements progress.Subscriber.
func (s *PrometheusSubscriber) OnPageCompleted(_ context.Context, page crawler.Page) error {
	s.succeeded++
	s.pages.WithLabelValues(s.scopeLabel(), "success").Inc()
	s.childLinks.Observe(float64(len(page.ChildLinks)))
	return nil
}

// OnPageFailed implements progress.Subscriber.
func (s *PrometheusSubscriber) OnPageFailed(context.Context, string, string) error {
	s.pages.WithLabelValues(s.scopeLabel(), "failure").Inc()
	return nil
}

// OnSessionFinished implements progress.Subscriber.
func (s *PrometheusSubscriber) OnSessionFinished(_ context.Context, elapsed time.Duration) error {
	result := "success"
	if s.succeeded == 0 {
		result = "no_pages"
	}
	s.sessionsFinished.WithLabelValues(result).Inc()
	if elapsed > 0 {
		s.sessionRuntime.Observe(elapsed.Seconds())
	}
	if s.running {
		s.sessionsRunning.Dec()
		s.running = false
	}
	return nil
}

func (s *PrometheusSubscriber) scopeLabel() string {
	if s.scope == "" {
		return "unknown"
	}
	return s.scope
}
