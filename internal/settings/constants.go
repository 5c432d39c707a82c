package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the admin UI site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback site name.
	DefaultSiteName = "ModelRelay"
	// PriorityModeKey selects the candidate ordering mode.
	PriorityModeKey = "PRIORITY_MODE"
	// ProviderBatchSizeKey controls how many providers are loaded per page.
	ProviderBatchSizeKey = "PROVIDER_BATCH_SIZE"
	// FailureThresholdKey controls consecutive failures before a breaker opens.
	FailureThresholdKey = "FAILURE_THRESHOLD"
	// CooldownSecondsKey controls how long an open breaker blocks a key.
	CooldownSecondsKey = "COOLDOWN_SECONDS"
	// ReservationProbeRatioKey controls the probe phase reservation ratio.
	ReservationProbeRatioKey = "RESERVATION_PROBE_RATIO"
	// ReservationMinSamplesKey controls samples needed to leave the probe phase.
	ReservationMinSamplesKey = "RESERVATION_MIN_SAMPLES"
	// AffinityRedisEnabledKey toggles Redis-backed affinity and concurrency state.
	AffinityRedisEnabledKey = "AFFINITY_REDIS_ENABLED"
	// AffinityRedisAddrKey defines the Redis address for shared state.
	AffinityRedisAddrKey = "AFFINITY_REDIS_ADDR"
	// AffinityRedisPasswordKey defines the Redis password for shared state.
	AffinityRedisPasswordKey = "AFFINITY_REDIS_PASSWORD"
	// AffinityRedisDBKey defines the Redis DB index for shared state.
	AffinityRedisDBKey = "AFFINITY_REDIS_DB"
	// AffinityRedisPrefixKey defines the Redis key prefix for shared state.
	AffinityRedisPrefixKey = "AFFINITY_REDIS_PREFIX"

	// PriorityModeProvider orders candidates by provider priority first.
	PriorityModeProvider = "provider"
	// PriorityModeGlobalKey orders candidates by per-key global priority.
	PriorityModeGlobalKey = "global_key"

	// DefaultPriorityMode is the fallback ordering mode.
	DefaultPriorityMode = PriorityModeProvider
	// DefaultProviderBatchSize is the fallback provider page size.
	DefaultProviderBatchSize = 20
	// DefaultFailureThreshold is the fallback breaker failure count.
	DefaultFailureThreshold = 3
	// DefaultCooldownSeconds is the fallback breaker cooldown.
	DefaultCooldownSeconds = 60
	// DefaultReservationProbeRatio is the fallback probe phase ratio.
	DefaultReservationProbeRatio = 0.10
	// DefaultReservationMinSamples is the fallback probe sample count.
	DefaultReservationMinSamples = 20
	// DefaultAffinityRedisPrefix is the fallback Redis key prefix.
	DefaultAffinityRedisPrefix = "mrelay"
)
