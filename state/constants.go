package state

import "time"

// RFC 6550 section 17, RPL Constants and Variables
const (
	DefaultDIOIntervalMin       = 3
	DefaultDIOIntervalDoublings = 20
	DefaultDIORedundancy        = 10
	DefaultMinHopRankIncrease   = 256
	DefaultMaxRankIncrease      = 7 * DefaultMinHopRankIncrease
	DefaultRouteLifetime        = 30
	DefaultLifetimeUnit         = 60
	DefaultPathControlSize      = 0
	DefaultDodagPreference      = 0
)

var (
	// LifetimeUnitDuration is the duration of one lifetime unit step
	LifetimeUnitDuration = time.Second
	DaoDelay             = time.Second
	DaoAckTimeout        = time.Second * 2
	DaoMaxRetries        = 3
	DaoDedupTTL          = time.Second * 10
	PoisonWindow         = time.Second * 5
	DisInterval          = time.Second * 10
	GcDelay              = time.Millisecond * 1000
	// DioParentLifetimeFactor multiplies Imax to obtain how long a parent is kept without hearing a DIO
	DioParentLifetimeFactor = 3

	MaxParents   = 8
	MaxRoutes    = 256
	MaxInstances = 1

	// link metric probing
	LinkProbeDelay       = time.Second * 15
	LinkProbeMaxFailures = 3
	// MaxLinkMetric is reported for neighbours that do not answer probes
	MaxLinkMetric = 16.0
	// RttMetricUnit is the round trip time that adds one to a measured link metric
	RttMetricUnit = time.Millisecond * 100
)
