package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talkinghead_sessions_started_total",
			Help: "Total number of accepted speak requests",
		},
	)

	SessionsPreempted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talkinghead_sessions_preempted_total",
			Help: "Sessions stopped because a newer request replaced them",
		},
	)

	SessionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talkinghead_session_errors_total",
			Help: "Failed sessions by error kind",
		},
		[]string{"kind"},
	)

	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "talkinghead_phoneme_extraction_seconds",
			Help:    "Phonemizer run time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	SynthesisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "talkinghead_synthesis_seconds",
			Help:    "Voice synthesis run time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	PhonemeChanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talkinghead_phoneme_changes_total",
			Help: "Phoneme change cues emitted during playback",
		},
	)

	VisemeFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talkinghead_viseme_fallbacks_total",
			Help: "Phoneme lookups resolved to the silence viseme",
		},
	)

	ActiveSession = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "talkinghead_active_session",
			Help: "1 while a session is loading or playing",
		},
	)

	PoseClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "talkinghead_pose_clients",
			Help: "Connected pose stream clients",
		},
	)
)
