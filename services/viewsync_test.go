package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"martin-blog/models"
)

func seedArticle(t *testing.T, db *gorm.DB, id uint, views int) {
	t.Helper()
	article := models.Article{
		ID:        id,
		Title:     "Artikel",
		Content:   "Inhalt",
		ViewCount: views,
	}
	require.NoError(t, db.Create(&article).Error)
}

func articleViews(t *testing.T, db *gorm.DB, id uint) int {
	t.Helper()
	var article models.Article
	require.NoError(t, db.First(&article, id).Error)
	return article.ViewCount
}

func TestViewSyncRun(t *testing.T) {
	ctx := context.Background()

	t.Run("flushes all counters in one pass", func(t *testing.T) {
		db := newTestDB(t)
		cacheClient, mr := newTestCache(t)
		svc := NewViewSyncService(db, cacheClient, zap.NewNop())

		seedArticle(t, db, 1, 0)
		seedArticle(t, db, 2, 3)
		seedArticle(t, db, 7, 0)
		mr.Set("article:1:views", "5")
		mr.Set("article:2:views", "0")
		mr.Set("article:7:views", "42")

		n, err := svc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, 5, articleViews(t, db, 1))
		assert.Equal(t, 0, articleViews(t, db, 2))
		assert.Equal(t, 42, articleViews(t, db, 7))
	})

	t.Run("skips malformed and non-numeric keys", func(t *testing.T) {
		db := newTestDB(t)
		cacheClient, mr := newTestCache(t)
		svc := NewViewSyncService(db, cacheClient, zap.NewNop())

		seedArticle(t, db, 1, 0)
		seedArticle(t, db, 2, 0)
		mr.Set("article:1:views", "5")
		mr.Set("article:abc:views", "9")
		mr.Set("article:2:views", "neun")

		n, err := svc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 5, articleViews(t, db, 1))
		assert.Equal(t, 0, articleViews(t, db, 2))
	})

	t.Run("no counters is a no-op", func(t *testing.T) {
		db := newTestDB(t)
		cacheClient, _ := newTestCache(t)
		svc := NewViewSyncService(db, cacheClient, zap.NewNop())

		n, err := svc.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("failed transaction rolls back completely", func(t *testing.T) {
		db := newTestDB(t)
		cacheClient, mr := newTestCache(t)
		svc := NewViewSyncService(db, cacheClient, zap.NewNop())

		seedArticle(t, db, 1, 1)
		seedArticle(t, db, 2, 2)
		mr.Set("article:1:views", "100")
		mr.Set("article:2:views", "200")

		require.NoError(t, db.Exec(
			`CREATE TRIGGER block_view_sync BEFORE UPDATE ON articles
			 BEGIN SELECT RAISE(ABORT, 'sync blocked'); END`).Error)

		n, err := svc.Run(ctx)
		assert.Error(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 1, articleViews(t, db, 1))
		assert.Equal(t, 2, articleViews(t, db, 2))
	})

	t.Run("unknown article ids do not fail the pass", func(t *testing.T) {
		db := newTestDB(t)
		cacheClient, mr := newTestCache(t)
		svc := NewViewSyncService(db, cacheClient, zap.NewNop())

		seedArticle(t, db, 1, 0)
		mr.Set("article:1:views", "5")
		mr.Set("article:999:views", "7")

		n, err := svc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 5, articleViews(t, db, 1))
	})
}
