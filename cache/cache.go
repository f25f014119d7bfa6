package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"martin-blog/config"
)

// opTimeout begrenzt jeden einzelnen Redis-Roundtrip.
const opTimeout = 3 * time.Second

// Client kapselt Redis für Fast-Counter und JSON-Caches. Alle Operationen
// degradieren bei Fehlern zu Cache-Miss bzw. No-Op; der Cache ist advisory,
// niemals Quelle für Dauerhaftigkeit.
type Client struct {
	rdb    *redis.Client
	Logger *zap.Logger
}

// NewClient erstellt einen neuen Cache-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		DB:           cfg.RedisDB,
		Password:     cfg.RedisPassword,
		DialTimeout:  opTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})
	return &Client{rdb: rdb, Logger: logger}
}

// NewClientFromRedis baut einen Client um eine bestehende Redis-Verbindung (Tests).
func NewClientFromRedis(rdb *redis.Client, logger *zap.Logger) *Client {
	return &Client{rdb: rdb, Logger: logger}
}

// Ping prüft die Verbindung beim Startup.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close schließt die Redis-Verbindung beim Shutdown.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get liest einen Key und versucht, JSON in dest zu dekodieren. Ist der Wert
// kein JSON, wird der rohe String zurückgegeben (tolerantes Lesen). Fehler
// werden geloggt und als Miss behandelt.
func (c *Client) Get(ctx context.Context, key string, dest any) (raw string, found bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.Logger.Error("Redis get error", zap.String("key", key), zap.Error(err))
		return "", false
	}
	if dest != nil {
		if err := json.Unmarshal([]byte(val), dest); err == nil {
			return val, true
		}
	}
	return val, true
}

// GetString liest einen Key als rohen String.
func (c *Client) GetString(ctx context.Context, key string) (string, bool) {
	return c.Get(ctx, key, nil)
}

// Set serialisiert value als JSON und schreibt es mit TTL. Zeitwerte werden
// über die MarshalJSON-Implementierungen der Record-Typen in lesbare Formate
// gebracht; nicht serialisierbare Werte fallen auf ihre String-Darstellung
// zurück. Fehler werden geloggt, Rückgabe false.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	payload, err := json.Marshal(value)
	if err != nil {
		payload = []byte(fmt.Sprintf("%v", value))
	}
	if err := c.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.Logger.Error("Redis set error", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// SetString schreibt einen rohen String mit TTL (ttl 0 = ohne Ablauf).
func (c *Client) SetString(ctx context.Context, key, value string, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.Logger.Error("Redis set error", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Delete entfernt einen oder mehrere Keys.
func (c *Client) Delete(ctx context.Context, keys ...string) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.Logger.Error("Redis delete error", zap.Strings("keys", keys), zap.Error(err))
		return false
	}
	return true
}

// Incr erhöht einen Integer-Key atomar (legt ihn bei 1 an, falls er fehlt).
// Bei Fehlern wird 0 zurückgegeben statt einen Fehler zu propagieren.
func (c *Client) Incr(ctx context.Context, key string) int64 {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		c.Logger.Error("Redis incr error", zap.String("key", key), zap.Error(err))
		return 0
	}
	return val
}

// SeedCounter initialisiert einen Counter-Key per SETNX, falls er noch nicht
// existiert. Der Lazy-Seed aus dem durablen Zähler muss atomar sein, damit
// parallele Erst-Leser denselben Startwert sehen.
func (c *Client) SeedCounter(ctx context.Context, key string, value int64) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.SetNX(ctx, key, value, 0).Err(); err != nil {
		c.Logger.Error("Redis setnx error", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Scan liefert alle Keys zum Pattern über cursor-basiertes SCAN, niemals
// KEYS, da der Keyspace groß werden kann.
func (c *Client) Scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		scanCtx, cancel := context.WithTimeout(ctx, opTimeout)
		batch, next, err := c.rdb.Scan(scanCtx, cursor, pattern, 100).Result()
		cancel()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
