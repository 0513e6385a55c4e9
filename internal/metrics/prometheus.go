package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	logx "adhand/pkg/logx"
)

// PrometheusSink implements Sink with the Prometheus client library.
// Registration errors are logged and never propagated.
type PrometheusSink struct {
	log logx.Logger

	fetchesTotal   *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	eventsLoaded   prometheus.Gauge
	eventsDropped  prometheus.Counter
	alertsTotal    *prometheus.CounterVec
	cacheTotal     *prometheus.CounterVec
	signalsTotal   *prometheus.CounterVec
	sessionsTotal  *prometheus.CounterVec
	sessionSeconds prometheus.Histogram
	playing        prometheus.Gauge
	volume         prometheus.Gauge
	backendErrors  prometheus.Counter
	notifications  *prometheus.CounterVec
}

func NewPrometheusSink(reg prometheus.Registerer, log logx.Logger) *PrometheusSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &PrometheusSink{log: log.With(logx.String("comp", "metrics"))}
	s.initScheduler(reg)
	s.initPlayback(reg)
	s.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adhand_notifications_total",
		Help: "Announcements delivered per sink and outcome.",
	}, []string{"sink", "outcome"})
	s.register(reg, s.notifications, "adhand_notifications_total")
	return s
}

func (s *PrometheusSink) initScheduler(reg prometheus.Registerer) {
	s.fetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adhand_timetable_fetches_total",
		Help: "Timetable provider fetches by outcome.",
	}, []string{"outcome"})
	s.fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "adhand_timetable_fetch_duration_seconds",
		Help:    "Duration of timetable provider fetches.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
	s.eventsLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adhand_timetable_events",
		Help: "Events scheduled for the current day.",
	})
	s.eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adhand_timetable_dropped_total",
		Help: "Slots dropped while building a day (malformed, passed, duplicate).",
	})
	s.alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adhand_alerts_total",
		Help: "Alerts reaching their time, by event and result.",
	}, []string{"event", "result"})
	s.cacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adhand_provider_cache_total",
		Help: "Provider cache lookups by result.",
	}, []string{"result"})

	s.register(reg, s.fetchesTotal, "adhand_timetable_fetches_total")
	s.register(reg, s.fetchDuration, "adhand_timetable_fetch_duration_seconds")
	s.register(reg, s.eventsLoaded, "adhand_timetable_events")
	s.register(reg, s.eventsDropped, "adhand_timetable_dropped_total")
	s.register(reg, s.alertsTotal, "adhand_alerts_total")
	s.register(reg, s.cacheTotal, "adhand_provider_cache_total")
}

func (s *PrometheusSink) initPlayback(reg prometheus.Registerer) {
	s.signalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adhand_signals_total",
		Help: "Signals received by the playback controller.",
	}, []string{"kind"})
	s.sessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adhand_sessions_total",
		Help: "Playback sessions by end reason.",
	}, []string{"reason"})
	s.sessionSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "adhand_session_duration_seconds",
		Help:    "Playback session duration.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 300, 600},
	})
	s.playing = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adhand_playing",
		Help: "1 while a playback session is live.",
	})
	s.volume = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adhand_volume_level",
		Help: "Volume level of the live or last session.",
	})
	s.backendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adhand_backend_failures_total",
		Help: "Audio backend failures.",
	})

	s.register(reg, s.signalsTotal, "adhand_signals_total")
	s.register(reg, s.sessionsTotal, "adhand_sessions_total")
	s.register(reg, s.sessionSeconds, "adhand_session_duration_seconds")
	s.register(reg, s.playing, "adhand_playing")
	s.register(reg, s.volume, "adhand_volume_level")
	s.register(reg, s.backendErrors, "adhand_backend_failures_total")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if reg == nil {
		return
	}
	if err := reg.Register(c); err != nil {
		s.log.Warn("failed to register metric", logx.String("name", name), logx.Err(err))
	}
}

func (s *PrometheusSink) TimetableFetched(d time.Duration, err error) {
	s.fetchDuration.Observe(d.Seconds())
	if err != nil {
		s.fetchesTotal.WithLabelValues("error").Inc()
		return
	}
	s.fetchesTotal.WithLabelValues("ok").Inc()
}

func (s *PrometheusSink) TimetableLoaded(events, dropped int) {
	s.eventsLoaded.Set(float64(events))
	s.eventsDropped.Add(float64(dropped))
}

func (s *PrometheusSink) AlertFired(event string) {
	s.alertsTotal.WithLabelValues(event, "fired").Inc()
}

func (s *PrometheusSink) AlertSkipped(event, reason string) {
	s.alertsTotal.WithLabelValues(event, "skipped_"+reason).Inc()
}

func (s *PrometheusSink) ProviderCache(hit bool) {
	if hit {
		s.cacheTotal.WithLabelValues("hit").Inc()
		return
	}
	s.cacheTotal.WithLabelValues("miss").Inc()
}

func (s *PrometheusSink) SignalReceived(kind string) {
	s.signalsTotal.WithLabelValues(kind).Inc()
}

func (s *PrometheusSink) SessionStarted(string) {
	s.playing.Set(1)
}

func (s *PrometheusSink) SessionEnded(reason string, d time.Duration) {
	s.playing.Set(0)
	s.sessionsTotal.WithLabelValues(reason).Inc()
	s.sessionSeconds.Observe(d.Seconds())
}

func (s *PrometheusSink) VolumeChanged(level int) {
	s.volume.Set(float64(level))
}

func (s *PrometheusSink) BackendFailure() {
	s.backendErrors.Inc()
}

func (s *PrometheusSink) NotificationDelivered(sink string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.notifications.WithLabelValues(sink, outcome).Inc()
}
