package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ChannovDenis/dobro20-sub000/internal/auth"
	"github.com/ChannovDenis/dobro20-sub000/internal/metrics"
)

// Scope decides who shares a rate limit bucket.
type Scope int

const (
	// ScopeCaller buckets by session header, falling back to the client IP.
	ScopeCaller Scope = iota
	// ScopeIP buckets by client IP only.
	ScopeIP
)

// Rule limits requests whose method matches and whose path starts with Prefix.
type Rule struct {
	Method   string
	Prefix   string
	Requests int
	Window   time.Duration
	Scope    Scope
}

// DefaultRules protect the paid AI endpoints hardest; image generation is the
// most expensive.
var DefaultRules = []Rule{
	{http.MethodPost, "/chat", 30, time.Minute, ScopeCaller},
	{http.MethodPost, "/lisa-stylist", 30, time.Minute, ScopeCaller},
	{http.MethodPost, "/colortype-analyzer", 10, time.Minute, ScopeCaller},
	{http.MethodPost, "/virtual-tryon", 5, time.Minute, ScopeCaller},
	{http.MethodGet, "/topics", 120, time.Minute, ScopeCaller},
	{http.MethodPost, "/topics", 60, time.Minute, ScopeCaller},
	{http.MethodPatch, "/topics/", 60, time.Minute, ScopeCaller},
	{http.MethodDelete, "/topics/", 30, time.Minute, ScopeCaller},
	{http.MethodGet, "/tenant", 60, time.Minute, ScopeIP},
	{http.MethodGet, "/admin/", 30, time.Minute, ScopeIP},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Block IPs after repeated violations
	Rules            []Rule   // DefaultRules when empty
}

const (
	violationThreshold = 10
	violationWindow    = time.Hour
	blockDuration      = 24 * time.Hour
)

// RateLimiter applies sliding window limits backed by Redis sorted sets.
// A nil client disables limiting and blocking. Redis errors let the request
// through.
type RateLimiter struct {
	client    *redis.Client
	rules     []Rule
	blocklist *Blocklist
	allow     []netip.Prefix
	autoBlock bool
	logger    zerolog.Logger
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules
	}
	rl := &RateLimiter{
		client:    client,
		rules:     rules,
		blocklist: NewBlocklist(client),
		autoBlock: cfg.AutoBlockEnabled,
		logger:    logger,
	}

	for _, entry := range cfg.Whitelist {
		p, err := parsePrefix(strings.TrimSpace(entry))
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid rate limit whitelist entry")
			continue
		}
		rl.allow = append(rl.allow, p)
	}
	if len(rl.allow) > 0 {
		logger.Info().Int("entries", len(rl.allow)).Msg("rate limit whitelist configured")
	}
	return rl
}

// parsePrefix accepts a CIDR or a single address.
func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (rl *RateLimiter) whitelisted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.allow {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// RealIP returns the client IP. chi's RealIP middleware has already copied
// any proxy header into RemoteAddr.
func RealIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// bucketKey names the sorted set counting requests for rule.
func bucketKey(r *http.Request, rule *Rule) string {
	who := "ip:" + RealIP(r)
	if rule.Scope == ScopeCaller {
		if sid := r.Header.Get(auth.SessionHeader); auth.ValidSessionID(sid) {
			who = "session:" + sid
		}
	}
	return "ratelimit:" + rule.Method + ":" + strings.TrimSuffix(rule.Prefix, "/") + ":" + who
}

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Check records a request under key and reports whether it fits in the
// window. Rejected requests still count, so hammering keeps the bucket full.
func (rl *RateLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := time.Now()
	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: ulid.Make().String()})
	count := pipe.ZCard(ctx, key)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.PExpire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true}, err
	}

	n := int(count.Val())
	d := Decision{Allowed: n <= limit, Remaining: limit - n, ResetAt: now.Add(window)}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if z := oldest.Val(); len(z) > 0 {
		d.ResetAt = time.UnixMilli(int64(z[0].Score)).Add(window)
	}
	return d, nil
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.client == nil || rl.whitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocklist.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		rule := rl.match(r)
		if rule == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := bucketKey(r, rule)
		d, err := rl.Check(r.Context(), key, rule.Requests, rule.Window)
		if err != nil {
			rl.logger.Error().Err(err).Str("key", key).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retry := int(time.Until(d.ResetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			metrics.RateLimitHits.WithLabelValues(normalizePath(r.URL.Path)).Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")
			rl.recordViolation(r.Context(), ip)

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// match returns the rule with the longest prefix for the request's method.
func (rl *RateLimiter) match(r *http.Request) *Rule {
	var best *Rule
	for i := range rl.rules {
		rule := &rl.rules[i]
		if rule.Method != r.Method || !strings.HasPrefix(r.URL.Path, rule.Prefix) {
			continue
		}
		if best == nil || len(rule.Prefix) > len(best.Prefix) {
			best = rule
		}
	}
	return best
}

// recordViolation blocks an IP once it has exceeded limits too often.
func (rl *RateLimiter) recordViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}

	key := "violations:ip:" + ip
	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, violationWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("record violation failed")
		return
	}

	if n := incr.Val(); n >= violationThreshold {
		rl.blocklist.Block(ctx, ip, blockDuration, "repeated rate limit violations")
		metrics.BlockedRequests.WithLabelValues("auto_block").Inc()
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", n).
			Msg("IP auto-blocked for repeated violations")
	}
}

// Blocklist holds temporary IP blocks in Redis.
type Blocklist struct {
	client *redis.Client
}

// NewBlocklist creates a blocklist on client.
func NewBlocklist(client *redis.Client) *Blocklist {
	return &Blocklist{client: client}
}

func blockKey(ip string) string { return "blocked:ip:" + ip }

// IsBlocked reports whether ip is blocked. Lookup errors count as not blocked.
func (b *Blocklist) IsBlocked(ctx context.Context, ip string) bool {
	n, err := b.client.Exists(ctx, blockKey(ip)).Result()
	return err == nil && n > 0
}

// Block blocks ip for d.
func (b *Blocklist) Block(ctx context.Context, ip string, d time.Duration, reason string) {
	b.client.Set(ctx, blockKey(ip), reason, d)
}
