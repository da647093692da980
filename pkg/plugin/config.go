package plugin

import "time"

const (
	AskRateLimitPerHour = 50
	AskRateLimitWindow  = 1 * time.Hour
	rateLimitKeyPrefix  = "nlquery:ratelimit:"
)

const (
	RedisOpTimeout         = 3 * time.Second
	RedisConnectionTimeout = 5 * time.Second
	HealthCheckTimeout     = 2 * time.Second
)

const (
	envRedisURL      = "GF_PLUGIN_NLQUERY_REDIS"
	envRedisAddr     = "GF_PLUGIN_NLQUERY_REDIS_ADDR"
	envRedisPassword = "GF_PLUGIN_NLQUERY_REDIS_PASSWORD"
	envRedisDB       = "GF_PLUGIN_NLQUERY_REDIS_DB"
	defaultRedisAddr = "localhost:6379"
)

const maxRequestBodyBytes = 1 << 20
