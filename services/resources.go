package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"martin-blog/cache"
	"martin-blog/config"
	"martin-blog/models"
)

// ResourceService verwaltet hochgeladene Ressourcen. Die Listen-Caches werden
// per Generationszähler invalidiert: jede Mutation erhöht
// resources:list:version, die Version steckt im Cache-Key, alte Seiten werden
// damit sofort unerreichbar und verfallen später über die TTL. O(1)
// Invalidierung statt O(n) Key-Löschung, dafür vorübergehend verwaiste
// Einträge.
type ResourceService struct {
	Config *config.Config
	DB     *gorm.DB
	Cache  *cache.Client
	Logger *zap.Logger
}

// NewResourceService erstellt eine neue Instanz des ResourceService.
func NewResourceService(cfg *config.Config, db *gorm.DB, c *cache.Client, logger *zap.Logger) *ResourceService {
	return &ResourceService{Config: cfg, DB: db, Cache: c, Logger: logger}
}

// bumpListVersion macht alle gecachten Listen-Seiten ungültig.
func (s *ResourceService) bumpListVersion(ctx context.Context) {
	s.Cache.Incr(ctx, cache.ResourceListVersionKey)
}

// Create registriert eine neue Ressource. Existiert der Key bereits, wird der
// bestehende Eintrag zurückgegeben.
func (s *ResourceService) Create(ctx context.Context, res *models.Resource) (*models.Resource, bool, error) {
	var existing models.Resource
	err := s.DB.WithContext(ctx).Where("key = ?", res.Key).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if err := s.DB.WithContext(ctx).Create(res).Error; err != nil {
		return nil, false, err
	}
	s.bumpListVersion(ctx)
	return res, true, nil
}

// List liefert eine Seite der Ressourcen-Liste, cache-first mit
// versioniertem Key.
func (s *ResourceService) List(ctx context.Context, current, size int, mediaType string) (*cache.ResourceListPage, error) {
	// Fehlender Zähler zählt als Generation 0; der erste INCR (auf 1) muss
	// die effektive Version wechseln, sonst überlebt eine vor der ersten
	// Mutation gecachte Seite den Bump.
	version, found := s.Cache.GetString(ctx, cache.ResourceListVersionKey)
	if !found || version == "" {
		version = "0"
	}
	cacheKey := cache.ResourceListKey(version, current, size, mediaType)

	page := &cache.ResourceListPage{}
	if _, found := s.Cache.Get(ctx, cacheKey, page); found && page.Size > 0 {
		return page, nil
	}

	query := s.DB.WithContext(ctx).Model(&models.Resource{})
	if mediaType != "" {
		query = query.Where("media_type = ?", mediaType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []models.Resource
	if err := query.Order("created_at desc").
		Offset((current - 1) * size).
		Limit(size).
		Find(&items).Error; err != nil {
		return nil, err
	}

	records := make([]cache.ResourceListItem, 0, len(items))
	for _, item := range items {
		records = append(records, cache.ResourceListItem{
			ID:        item.ID,
			Key:       item.Key,
			Name:      item.Name,
			MediaType: item.MediaType,
			Size:      item.Size,
			CreatedAt: cache.Time{Time: item.CreatedAt},
		})
	}

	page = &cache.ResourceListPage{Records: records, Total: total, Current: current, Size: size}
	s.Cache.Set(ctx, cacheKey, page, time.Duration(s.Config.RedisCacheTTL)*time.Second)
	return page, nil
}

// Delete entfernt eine Ressource aus der DB und meldet den Objekt-Key für die
// Löschung im Bucket zurück.
func (s *ResourceService) Delete(ctx context.Context, id uint) (string, error) {
	var resource models.Resource
	if err := s.DB.WithContext(ctx).First(&resource, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if err := s.DB.WithContext(ctx).Delete(&resource).Error; err != nil {
		return "", err
	}
	s.bumpListVersion(ctx)
	return resource.Key, nil
}
