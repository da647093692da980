package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/instancemgmt"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/backend/resource/httpadapter"
	"github.com/redis/go-redis/v9"

	"nlquery-app/pkg/dispatch"
	"nlquery-app/pkg/llm"
	"nlquery-app/pkg/mcpserver"
	"nlquery-app/pkg/plugin/openapi"
	"nlquery-app/pkg/rbac"
	"nlquery-app/pkg/settings"
)

const PluginID = "nlquery-app"

var (
	_ backend.CallResourceHandler   = (*Plugin)(nil)
	_ instancemgmt.InstanceDisposer = (*Plugin)(nil)
	_ backend.CheckHealthHandler    = (*Plugin)(nil)
)

func getRedisAddr() string {
	if addr := os.Getenv(envRedisAddr); addr != "" {
		return addr
	}
	return defaultRedisAddr
}

func createRedisClient(logger log.Logger) (*redis.Client, error) {
	if redisURL := os.Getenv(envRedisURL); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", envRedisURL, err)
		}
		logger.Info("Using Redis connection from " + envRedisURL)
		return redis.NewClient(opt), nil
	}

	addr := getRedisAddr()
	password := os.Getenv(envRedisPassword)

	db := 0
	if dbStr := os.Getenv(envRedisDB); dbStr != "" {
		var err error
		db, err = strconv.Atoi(dbStr)
		if err != nil {
			logger.Warn("Invalid Redis DB value, using default 0", "env", envRedisDB, "value", dbStr, "error", err)
			db = 0
		}
	}

	logger.Info("Using Redis connection from individual environment variables",
		"addr", addr,
		"db", db,
		"hasPassword", password != "")

	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), nil
}

// newRateLimiter prefers Redis so limits hold across replicas and falls back
// to in-memory buckets. The returned client is nil when Redis is not used.
func newRateLimiter(logger log.Logger) (RateLimiter, *redis.Client) {
	client, err := createRedisClient(logger)
	if err != nil {
		logger.Warn("Failed to create Redis client, falling back to in-memory rate limiting", "error", err)
		return NewInMemoryRateLimiter(logger), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), RedisConnectionTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis connection test failed, falling back to in-memory rate limiting", "error", err)
		client.Close()
		return NewInMemoryRateLimiter(logger), nil
	}

	logger.Info("Using Redis for rate limiting")
	return NewRedisRateLimiter(client, logger), client
}

type Plugin struct {
	backend.CallResourceHandler
	logger      log.Logger
	settings    *settings.Settings
	store       settings.Store
	relay       *providerRelay
	dispatcher  *dispatch.Dispatcher
	limiter     RateLimiter
	redisClient *redis.Client
	mcpHandler  http.Handler
	mux         *http.ServeMux
}

func NewPlugin(ctx context.Context, appSettings backend.AppInstanceSettings) (instancemgmt.Instance, error) {
	logger := log.DefaultLogger

	cfg, err := settings.ParsePartial(appSettings.JSONData, appSettings.DecryptedSecureJSONData)
	if err != nil {
		logger.Warn("Failed to parse plugin settings", "error", err)
	}
	if cfg == nil {
		// The provider URL is unknown, so the server key is not handed out.
		cfg = &settings.Settings{}
	}

	limiter, redisClient := newRateLimiter(logger)
	p := newPlugin(cfg, llm.NewClient(logger), limiter, logger)
	p.redisClient = redisClient

	logger.Info("Plugin initialized",
		"pluginId", PluginID,
		"tables", len(cfg.Model.Tables),
		"fields", len(cfg.Schema.Fields),
		"hasApiKey", cfg.APIKey != "",
		"rateLimiter", limiter.Backend())

	return p, nil
}

func newPlugin(cfg *settings.Settings, client *llm.Client, limiter RateLimiter, logger log.Logger) *Plugin {
	relay := &providerRelay{client: client, apiURL: cfg.APIURL, apiKey: cfg.APIKey}
	dispatcher := dispatch.New(relay, client, logger)
	store := settings.NewStaticStore(cfg)

	p := &Plugin{
		logger:     logger,
		settings:   cfg,
		store:      store,
		relay:      relay,
		dispatcher: dispatcher,
		limiter:    limiter,
		mcpHandler: mcpserver.Handler(mcpserver.New(dispatcher, store, logger)),
	}

	p.mux = http.NewServeMux()
	p.registerRoutes(p.mux)
	p.CallResourceHandler = httpadapter.New(p.mux)
	return p
}

func (p *Plugin) Dispose() {
	if p.redisClient != nil {
		if err := p.redisClient.Close(); err != nil {
			p.logger.Warn("Failed to close Redis client", "error", err)
		}
	}
	p.logger.Info("Plugin disposed")
}

func (p *Plugin) CheckHealth(ctx context.Context, req *backend.CheckHealthRequest) (*backend.CheckHealthResult, error) {
	p.logger.Info("CheckHealth called")

	var notes []string
	if p.settings.APIKey == "" {
		notes = append(notes, "no server API key configured, users must supply their own")
	}
	if p.settings.Datasource == "" {
		notes = append(notes, "no datasource selected")
	}
	if len(p.settings.Model.Tables) == 0 {
		notes = append(notes, "data model is empty")
	}

	limiter := p.limiter.Backend()
	if p.redisClient != nil {
		healthCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
		defer cancel()
		if err := p.redisClient.Ping(healthCtx).Err(); err != nil {
			p.logger.Warn("Redis health check failed", "error", err)
			notes = append(notes, "Redis connection failed, rate limiting fails open")
		} else {
			limiter = "redis: connected"
		}
	}

	message := fmt.Sprintf("Plugin is healthy (tables: %d, fields: %d, rate limiter: %s)",
		len(p.settings.Model.Tables), len(p.settings.Schema.Fields), limiter)
	if len(notes) > 0 {
		message += ". " + strings.Join(notes, "; ")
	}

	return &backend.CheckHealthResult{
		Status:  backend.HealthStatusOk,
		Message: message,
	}, nil
}

func (p *Plugin) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", p.handleHealth)
	mux.HandleFunc("/delegateRequestToAPI", p.handleDelegateRequest)
	mux.HandleFunc("/api/ask/query", p.handleAskQuery)
	mux.HandleFunc("/api/ask/panel-options", p.handleAskPanelOptions)
	mux.HandleFunc("/api/panel", p.handlePanel)
	mux.HandleFunc("/api/settings", p.handleGetSettings)
	mux.HandleFunc("/api/settings/validate", p.handleValidateSettings)
	mux.HandleFunc("/api/openapi", p.handleOpenAPI)
	mux.Handle("/mcp", p.mcpHandler)

	mux.HandleFunc("/", p.handleDefault)
}

func (p *Plugin) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"message":     "Natural language query backend is running",
		"hasApiKey":   p.settings.APIKey != "",
		"datasource":  p.settings.Datasource,
		"tables":      len(p.settings.Model.Tables),
		"rateLimiter": p.limiter.Backend(),
	})
}

func (p *Plugin) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(openapi.GetSpecBytes())
}

func (p *Plugin) handleDefault(w http.ResponseWriter, r *http.Request) {
	p.logger.Info("Default handler", "path", r.URL.Path, "method", r.Method)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Natural Language Query Backend Plugin",
		"path":    r.URL.Path,
	})
}

// allow applies the per-user rate limit and answers 429 when it is exceeded.
func (p *Plugin) allow(w http.ResponseWriter, r *http.Request) bool {
	if p.limiter.CheckLimit(getUserID(r)) {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(AskRateLimitWindow.Seconds())))
	http.Error(w, fmt.Sprintf("Rate limit exceeded: %d requests per hour", AskRateLimitPerHour), http.StatusTooManyRequests)
	return false
}

// authorize answers 403 when the caller's org role may not perform action.
func (p *Plugin) authorize(w http.ResponseWriter, r *http.Request, action rbac.Action) bool {
	role := getUserRole(r)
	if rbac.Can(role, action) {
		return true
	}
	p.logger.Warn("Access denied", "role", role, "action", action, "path", r.URL.Path)
	http.Error(w, fmt.Sprintf("Access denied: %s role cannot %s", role, action), http.StatusForbidden)
	return false
}

func getUserRole(r *http.Request) string {
	pluginContext := httpadapter.PluginConfigFromContext(r.Context())
	if pluginContext.User != nil {
		if role := string(pluginContext.User.Role); role != "" {
			return role
		}
	}

	for _, header := range []string{"X-Grafana-User-Role", "X-Grafana-Org-Role", "X-Grafana-Role"} {
		if role := r.Header.Get(header); role != "" {
			return role
		}
	}

	return rbac.RoleViewer
}

func getUserID(r *http.Request) int64 {
	pluginContext := httpadapter.PluginConfigFromContext(r.Context())
	if pluginContext.User != nil && pluginContext.User.Login != "" {
		h := fnv.New64a()
		h.Write([]byte(pluginContext.User.Login))
		return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
	}

	if id, err := strconv.ParseInt(r.Header.Get("X-Grafana-User-Id"), 10, 64); err == nil {
		return id
	}

	return 0
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
