package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/auth"
	"github.com/MrSnakeDoc/marksync/internal/backend"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/session"
)

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	AllowedOrigins  []string          // websocket Origin allow-list, empty = same host only
	AllowedCIDRS    []string          // IPs allowed to access readyz/metrics endpoints
	TrustProxy      bool              // true if running behind a trusted reverse proxy (e.g., cloudflared)
	RedisClient     *redis.Client     // shared Redis connection, nil when not configured
	Backend         backend.Service   // durable bookmarks and change feed
	Sessions        *auth.Sessions    // token verification and sign-out
	Views           session.Deps      // collaborators of every websocket tab
	OAuthProviders  map[string]string // provider name -> authorize URL
	SignedOutURL    string            // where signed-out requests are sent
	SignedInURL     string            // where a signed-in user lands
	RateLimitBurst  int               // mutation ops a user may burst
	RateLimitRefill time.Duration     // time to regain one op
	Closing         <-chan struct{}   // closed when the server shuts down
}
