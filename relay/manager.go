package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/room4-2/agentwire/config"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

const (
	cleanupInterval  = time.Minute
	dialTimeout      = 10 * time.Second
	activeSessionSet = "active_sessions"
)

// ErrTooManySessions is returned when MaxSessions bridges are open
var ErrTooManySessions = errors.New("maximum sessions reached")

// Manager owns all open bridges and mirrors them into Redis when available
type Manager struct {
	bridges map[string]*Bridge
	mu      sync.RWMutex
	redis   *redis.Client
	config  *config.Config
	dialer  *websocket.Dialer
}

// NewManager creates a bridge manager. Redis is optional: an empty
// REDIS_URL or a failed ping runs the registry in memory only.
func NewManager(cfg *config.Config) (*Manager, error) {
	var redisClient *redis.Client

	if cfg.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("⚠️ Redis unavailable at %s, continuing without it: %v", cfg.RedisURL, err)
			redisClient.Close()
			redisClient = nil
		}
	}

	return newManager(cfg, redisClient), nil
}

func newManager(cfg *config.Config, redisClient *redis.Client) *Manager {
	return &Manager{
		bridges: make(map[string]*Bridge),
		redis:   redisClient,
		config:  cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: dialTimeout},
	}
}

// CreateBridge dials the gateway on behalf of an accepted UI socket
func (m *Manager) CreateBridge(ctx context.Context, clientConn *websocket.Conn) (*Bridge, error) {
	if m.ActiveCount() >= m.config.MaxSessions {
		return nil, ErrTooManySessions
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	gatewayConn, _, err := m.dialer.DialContext(dialCtx, m.config.GatewayWSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway connection failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check now that the dial is done
	if len(m.bridges) >= m.config.MaxSessions {
		gatewayConn.Close()
		return nil, ErrTooManySessions
	}

	bridge := NewBridge(uuid.New().String(), clientConn, gatewayConn, m.config.KeepAlivePeriod)
	m.storeBridge(ctx, bridge)
	return bridge, nil
}

// storeBridge saves a bridge to memory and Redis; callers hold mu
func (m *Manager) storeBridge(ctx context.Context, bridge *Bridge) {
	m.bridges[bridge.ID] = bridge

	if m.redis != nil {
		key := "session:" + bridge.ID
		m.redis.HSet(ctx, key, map[string]interface{}{
			"created_at":    bridge.CreatedAt.Format(time.RFC3339),
			"last_activity": bridge.LastActivity().Format(time.RFC3339),
			"remote_addr":   bridge.RemoteAddr,
			"gateway":       m.config.GatewayWSURL,
			"status":        "active",
		})
		m.redis.SAdd(ctx, activeSessionSet, bridge.ID)
		m.redis.Expire(ctx, key, m.config.SessionTimeout)
	}
}

// forget drops a bridge from Redis; callers hold mu
func (m *Manager) forget(ctx context.Context, id string) {
	delete(m.bridges, id)

	if m.redis != nil {
		m.redis.Del(ctx, "session:"+id)
		m.redis.SRem(ctx, activeSessionSet, id)
	}
}

// RemoveBridge closes and forgets a bridge
func (m *Manager) RemoveBridge(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bridge, exists := m.bridges[id]
	if !exists {
		return nil
	}

	m.forget(ctx, id)
	return bridge.Close()
}

// ActiveCount returns the number of open bridges
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bridges)
}

// CleanupInactive closes bridges idle longer than SessionTimeout and
// refreshes the Redis record of the others.
func (m *Manager) CleanupInactive(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, bridge := range m.bridges {
		last := bridge.LastActivity()
		if now.Sub(last) > m.config.SessionTimeout || bridge.IsClosed() {
			log.Printf("🧹 [%s] Closing inactive bridge", id[:8])
			bridge.Close()
			m.forget(ctx, id)
			continue
		}

		if m.redis != nil {
			key := "session:" + id
			m.redis.HSet(ctx, key, "last_activity", last.Format(time.RFC3339))
			m.redis.Expire(ctx, key, m.config.SessionTimeout)
		}
	}
}

// StartCleanupRoutine starts periodic cleanup of inactive bridges
func (m *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupInactive(ctx)
		}
	}
}

// Shutdown closes all bridges
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for id, bridge := range m.bridges {
		bridge.Close()
		m.forget(ctx, id)
	}

	if m.redis != nil {
		m.redis.Close()
	}
}
