package services

import (
	"context"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"martin-blog/cache"
	"martin-blog/models"
)

// ViewSyncService spült die Redis-Fast-Counter periodisch in die Datenbank.
// Der Redis-Stand gilt als Quelle der Wahrheit für "aktuell" und überschreibt
// den durablen Zähler (last-writer-wins). Zwischen zwei Läufen darf die DB
// hinterherhinken; bei einem Crash gehen höchstens die Inkremente eines
// Intervalls verloren.
type ViewSyncService struct {
	DB     *gorm.DB
	Cache  *cache.Client
	Logger *zap.Logger
}

// NewViewSyncService erstellt eine neue Instanz des ViewSyncService.
func NewViewSyncService(db *gorm.DB, c *cache.Client, logger *zap.Logger) *ViewSyncService {
	return &ViewSyncService{DB: db, Cache: c, Logger: logger}
}

// Run führt einen Sync-Durchlauf aus und gibt die Anzahl aktualisierter
// Artikel zurück. Alle Updates eines Durchlaufs laufen in EINER Transaktion;
// schlägt sie fehl, wird komplett zurückgerollt und der nächste Tick
// versucht es erneut — keine Teil-Commits.
func (s *ViewSyncService) Run(ctx context.Context) (int, error) {
	s.Logger.Info("Starting scheduled task: sync views to DB")

	keys, err := s.Cache.Scan(ctx, cache.ViewsKeyPattern)
	if err != nil {
		s.Logger.Error("View sync scan failed", zap.Error(err))
		return 0, err
	}

	updates := make(map[uint]int64)
	for _, key := range keys {
		articleID, ok := cache.ParseArticleViewsKey(key)
		if !ok {
			// Einzelne kaputte Keys brechen den Durchlauf nicht ab
			s.Logger.Warn("Skipping malformed view counter key", zap.String("key", key))
			continue
		}
		raw, found := s.Cache.GetString(ctx, key)
		if !found {
			continue
		}
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.Logger.Warn("Skipping non-numeric view counter",
				zap.String("key", key), zap.String("value", raw))
			continue
		}
		updates[articleID] = count
	}

	if len(updates) == 0 {
		s.Logger.Info("No views to sync")
		return 0, nil
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for articleID, count := range updates {
			if err := tx.Model(&models.Article{}).
				Where("id = ?", articleID).
				Update("view_count", count).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.Logger.Error("View sync transaction failed, rolled back", zap.Error(err))
		return 0, err
	}

	s.Logger.Info("View sync completed", zap.Int("updated_articles", len(updates)))
	return len(updates), nil
}
