package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"8000"`

	// Redis für Fast-Counter und Caches
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisCacheTTL int    `envconfig:"REDIS_CACHE_TTL" default:"180"`

	// Zyklus des View-Sync-Jobs in Minuten
	SyncViewsIntervalMinutes int `envconfig:"SYNC_VIEWS_INTERVAL_MINUTES" default:"10"`

	// CDN-Domain vor dem Objektspeicher, inkl. Timestamp-Hotlink-Schutz
	CDNDomain           string `envconfig:"CDN_DOMAIN"`
	CDNTimestampEnabled bool   `envconfig:"CDN_TIMESTAMP_ENABLED" default:"false"`
	CDNTimestampKey     string `envconfig:"CDN_TIMESTAMP_KEY"`
	CDNTimestampExpire  int    `envconfig:"CDN_TIMESTAMP_EXPIRE" default:"3600"`

	// Signatur-Secret für die App-seitige Link-Verschleierung (Frontend-Vertrag)
	URLSignSecret string `envconfig:"URL_SIGN_SECRET" required:"true"`

	MediaS3Key    string `envconfig:"MEDIA_S3_KEY"`
	MediaS3Secret string `envconfig:"MEDIA_S3_SECRET"`
	MediaS3URL    string `envconfig:"MEDIA_S3_URL"`
	MediaS3Region string `envconfig:"MEDIA_S3_REGION"`
	MediaS3Bucket string `envconfig:"MEDIA_S3_BUCKET"`

	// Admin-API-Key, leer = Middleware deaktiviert
	APISecretKey string `envconfig:"API_SECRET_KEY"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// RedisAddr gibt die Redis-Adresse für go-redis zurück.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// TimestampSigningEnabled prüft, ob der CDN-Timestamp-Schutz aktiv und konfiguriert ist.
func (c *Config) TimestampSigningEnabled() bool {
	return c.CDNTimestampEnabled && c.CDNTimestampKey != "" && c.CDNDomain != ""
}

// MediaStorageEnabled prüft, ob der Objektspeicher konfiguriert ist.
func (c *Config) MediaStorageEnabled() bool {
	return c.MediaS3Key != "" && c.MediaS3Secret != "" && c.MediaS3URL != "" && c.MediaS3Bucket != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
