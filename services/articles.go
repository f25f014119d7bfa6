package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"martin-blog/cache"
	"martin-blog/cdn"
	"martin-blog/config"
	"martin-blog/models"
)

// ProtectedPlaceholder ersetzt den Artikel-Text, solange die Schutzfrage
// nicht beantwortet ist. Metadaten (Titel, Frage) bleiben sichtbar, damit
// das Frontend den Verifikations-Dialog rendern kann.
const ProtectedPlaceholder = "This content is protected. Answer the verification question to view it."

// snapshotTTL ist die Lebensdauer des Artikel-Detail-Snapshots im Cache.
const snapshotTTL = 5 * time.Minute

var (
	ErrNotFound     = errors.New("article not found")
	ErrAlreadyLiked = errors.New("already liked")
	ErrNotLiked     = errors.New("not liked yet")
)

// DetailStatus beschreibt das Ergebnis des Artikel-Lesepfads.
type DetailStatus int

const (
	DetailVisible DetailStatus = iota
	DetailNeedsVerify
	DetailNotFound
)

// ArticleService orchestriert den Artikel-Lesepfad: Cache-oder-DB-Lookup,
// Fast-Counter-Inkrement und Schutz-Gating. Schreiboperationen säubern
// Inhalte von Anbieter-Signaturen, bevor sie persistiert werden.
type ArticleService struct {
	Config *config.Config
	DB     *gorm.DB
	Cache  *cache.Client
	Signer cdn.Signer
	Logger *zap.Logger
}

// NewArticleService erstellt eine neue Instanz des ArticleService.
func NewArticleService(cfg *config.Config, db *gorm.DB, c *cache.Client, signer cdn.Signer, logger *zap.Logger) *ArticleService {
	return &ArticleService{Config: cfg, DB: db, Cache: c, Signer: signer, Logger: logger}
}

// snapshotFromModel baut den Cache-Snapshot aus dem DB-Modell.
func snapshotFromModel(a *models.Article) *cache.ArticleSnapshot {
	tags := make([]cache.TagItem, 0, len(a.Tags))
	for _, t := range a.Tags {
		tags = append(tags, cache.TagItem{ID: t.ID, Name: t.Name, Color: t.Color})
	}
	categoryName := ""
	if a.Category != nil {
		categoryName = a.Category.Name
	}
	return &cache.ArticleSnapshot{
		ID:                 a.ID,
		Title:              a.Title,
		Summary:            a.Summary,
		Content:            a.Content,
		Cover:              a.Cover,
		CategoryID:         a.CategoryID,
		CategoryName:       categoryName,
		Tags:               tags,
		ViewCount:          int64(a.ViewCount),
		CommentCount:       a.CommentCount,
		LikeCount:          a.LikeCount,
		IsPublished:        a.IsPublished,
		IsTop:              a.IsTop,
		IsRecommend:        a.IsRecommend,
		IsHidden:           a.IsHidden,
		IsProtected:        a.IsProtected,
		ProtectionQuestion: a.ProtectionQuestion,
		CreatedAt:          cache.Time{Time: a.CreatedAt},
		UpdatedAt:          cache.Time{Time: a.UpdatedAt},
	}
}

// GetDetail liefert die Detail-Ansicht eines Artikels. Jeder erfolgreiche
// Lesezugriff erhöht genau einen Zähler: den Redis-Fast-Counter, der lazily
// aus dem durablen Stand geseedet wird. Die DB wird erst vom View-Sync-Job
// nachgezogen (siehe ViewSyncService).
func (s *ArticleService) GetDetail(ctx context.Context, articleID uint, isAdmin bool, answer string) (*cache.ArticleSnapshot, DetailStatus, error) {
	log := s.Logger.With(zap.Uint("article_id", articleID))

	snapshot := &cache.ArticleSnapshot{}
	cacheKey := cache.ArticleKey(articleID)
	if _, found := s.Cache.Get(ctx, cacheKey, snapshot); !found || snapshot.ID == 0 {
		var article models.Article
		err := s.DB.WithContext(ctx).
			Preload("Category").
			Preload("Tags").
			First(&article, articleID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, DetailNotFound, nil
		}
		if err != nil {
			log.Error("Database error while fetching article", zap.Error(err))
			return nil, DetailNotFound, err
		}
		snapshot = snapshotFromModel(&article)
		s.Cache.Set(ctx, cacheKey, snapshot, snapshotTTL)
	}

	// Unveröffentlichte Artikel existieren für Nicht-Admins nicht
	if !snapshot.IsPublished && !isAdmin {
		return nil, DetailNotFound, nil
	}

	// Fast-Counter: SETNX-Seed aus dem letzten bekannten durablen Stand,
	// dann atomares INCR. Nie read-modify-write in zwei Roundtrips.
	viewsKey := cache.ArticleViewsKey(articleID)
	s.Cache.SeedCounter(ctx, viewsKey, snapshot.ViewCount)
	if views := s.Cache.Incr(ctx, viewsKey); views > 0 {
		snapshot.ViewCount = views
	}

	result := *snapshot
	visible := !snapshot.IsProtected || isAdmin ||
		(answer != "" && s.answerMatches(ctx, articleID, answer))

	if s.Config.TimestampSigningEnabled() {
		result.Cover = s.Signer.RefreshContent(result.Cover)
	}

	if !visible {
		result.Content = ProtectedPlaceholder
		return &result, DetailNeedsVerify, nil
	}

	if !snapshot.IsProtected {
		result.ProtectionQuestion = ""
	}
	if s.Config.TimestampSigningEnabled() {
		result.Content = s.Signer.RefreshContent(result.Content)
	}
	return &result, DetailVisible, nil
}

// answerMatches prüft die Schutz-Antwort per exaktem String-Vergleich gegen
// die DB (die Antwort liegt bewusst nicht im Cache-Snapshot).
func (s *ArticleService) answerMatches(ctx context.Context, articleID uint, answer string) bool {
	var article models.Article
	if err := s.DB.WithContext(ctx).Select("protection_answer").First(&article, articleID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.Logger.Error("Database error while checking protection answer",
				zap.Uint("article_id", articleID), zap.Error(err))
		}
		return false
	}
	return article.ProtectionAnswer != "" && answer == article.ProtectionAnswer
}

// ArticleListItem ist die Listen-Darstellung eines Artikels (Frontend-Vertrag).
type ArticleListItem struct {
	ID           uint   `json:"id"`
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	Cover        string `json:"cover"`
	CreateTime   string `json:"createTime"`
	CategoryName string `json:"categoryName"`
	ViewCount    int    `json:"viewCount"`
	CommentCount int    `json:"commentCount"`
	LikeCount    int    `json:"likeCount"`
	IsPublished  *bool  `json:"is_published,omitempty"`
	IsTop        *bool  `json:"is_top,omitempty"`
	IsRecommend  *bool  `json:"is_recommend,omitempty"`
}

// ListParams sind die Filter der öffentlichen Artikel-Liste.
type ListParams struct {
	Current    int
	Size       int
	CategoryID uint
	TagID      uint
	Keyword    string
	Sort       string // new, hot, recommend
	Admin      bool   // inkl. Entwürfe und versteckte Artikel
}

// PagedArticles ist eine Seite der Artikel-Liste.
type PagedArticles struct {
	Records []ArticleListItem `json:"records"`
	Total   int64             `json:"total"`
	Current int               `json:"current"`
	Size    int               `json:"size"`
}

// List liefert eine Artikel-Seite. Versteckte Artikel tauchen in keiner
// Liste auf, bleiben aber per Direktlink erreichbar.
func (s *ArticleService) List(ctx context.Context, p ListParams) (*PagedArticles, error) {
	query := s.DB.WithContext(ctx).Model(&models.Article{})

	if !p.Admin {
		query = query.Where("is_published = ?", true).Where("is_hidden = ?", false)
	}
	if p.CategoryID > 0 {
		query = query.Where("category_id = ?", p.CategoryID)
	}
	if p.TagID > 0 {
		query = query.Joins("JOIN article_tags ON article_tags.article_id = articles.id").
			Where("article_tags.tag_id = ?", p.TagID)
	}
	if p.Keyword != "" {
		like := "%" + p.Keyword + "%"
		query = query.Where("title LIKE ? OR summary LIKE ? OR content LIKE ?", like, like, like)
	}

	switch p.Sort {
	case "hot":
		query = query.Order("view_count desc")
	case "recommend":
		query = query.Where("is_recommend = ?", true).Order("created_at desc")
	default:
		query = query.Order("created_at desc")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var articles []models.Article
	if err := query.Preload("Category").
		Offset((p.Current - 1) * p.Size).
		Limit(p.Size).
		Find(&articles).Error; err != nil {
		return nil, err
	}

	records := make([]ArticleListItem, 0, len(articles))
	for i := range articles {
		a := &articles[i]
		item := ArticleListItem{
			ID:           a.ID,
			Title:        a.Title,
			Summary:      a.Summary,
			Cover:        a.Cover,
			CreateTime:   a.CreatedAt.Format("2006-01-02 15:04:05"),
			ViewCount:    a.ViewCount,
			CommentCount: a.CommentCount,
			LikeCount:    a.LikeCount,
		}
		if a.Category != nil {
			item.CategoryName = a.Category.Name
		}
		if p.Admin {
			item.IsPublished = &a.IsPublished
			item.IsTop = &a.IsTop
			item.IsRecommend = &a.IsRecommend
		}
		records = append(records, item)
	}

	return &PagedArticles{Records: records, Total: total, Current: p.Current, Size: p.Size}, nil
}

// ArticleInput sind die Schreibfelder eines Artikels.
type ArticleInput struct {
	Title              string  `json:"title" binding:"required"`
	Summary            string  `json:"summary"`
	Content            string  `json:"content" binding:"required"`
	Cover              string  `json:"cover"`
	CategoryID         *uint   `json:"category_id"`
	TagIDs             []uint  `json:"tag_ids"`
	IsPublished        *bool   `json:"is_published"`
	IsTop              *bool   `json:"is_top"`
	IsRecommend        *bool   `json:"is_recommend"`
	IsHidden           *bool   `json:"is_hidden"`
	IsProtected        *bool   `json:"is_protected"`
	ProtectionQuestion *string `json:"protection_question"`
	ProtectionAnswer   *string `json:"protection_answer"`
}

// Create legt einen Artikel an. Inhalt und Cover werden vor dem Persistieren
// von Anbieter-Signaturen befreit: gespeicherte Inhalte dürfen nie eine
// ablaufende Signatur tragen.
func (s *ArticleService) Create(ctx context.Context, in ArticleInput, authorID uint) (*models.Article, error) {
	article := models.Article{
		Title:       in.Title,
		Summary:     in.Summary,
		Content:     s.Signer.StripContent(in.Content),
		Cover:       s.Signer.StripContent(in.Cover),
		CategoryID:  in.CategoryID,
		AuthorID:    authorID,
		IsPublished: true,
	}
	if in.IsPublished != nil {
		article.IsPublished = *in.IsPublished
	}
	if in.IsTop != nil {
		article.IsTop = *in.IsTop
	}
	if in.IsRecommend != nil {
		article.IsRecommend = *in.IsRecommend
	}
	if in.IsHidden != nil {
		article.IsHidden = *in.IsHidden
	}
	if in.IsProtected != nil {
		article.IsProtected = *in.IsProtected
	}
	if in.ProtectionQuestion != nil {
		article.ProtectionQuestion = *in.ProtectionQuestion
	}
	if in.ProtectionAnswer != nil {
		article.ProtectionAnswer = *in.ProtectionAnswer
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&article).Error; err != nil {
			return err
		}
		if len(in.TagIDs) > 0 {
			var tags []models.Tag
			if err := tx.Where("id IN ?", in.TagIDs).Find(&tags).Error; err != nil {
				return err
			}
			if err := tx.Model(&article).Association("Tags").Replace(tags); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &article, nil
}

// Update aktualisiert einen Artikel und invalidiert den Detail-Snapshot.
func (s *ArticleService) Update(ctx context.Context, articleID uint, in ArticleInput) error {
	var article models.Article
	if err := s.DB.WithContext(ctx).First(&article, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	article.Title = in.Title
	article.Summary = in.Summary
	article.Content = s.Signer.StripContent(in.Content)
	article.Cover = s.Signer.StripContent(in.Cover)
	article.CategoryID = in.CategoryID
	if in.IsPublished != nil {
		article.IsPublished = *in.IsPublished
	}
	if in.IsTop != nil {
		article.IsTop = *in.IsTop
	}
	if in.IsRecommend != nil {
		article.IsRecommend = *in.IsRecommend
	}
	if in.IsHidden != nil {
		article.IsHidden = *in.IsHidden
	}
	if in.IsProtected != nil {
		article.IsProtected = *in.IsProtected
	}
	if in.ProtectionQuestion != nil {
		article.ProtectionQuestion = *in.ProtectionQuestion
	}
	if in.ProtectionAnswer != nil {
		article.ProtectionAnswer = *in.ProtectionAnswer
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&article).Error; err != nil {
			return err
		}
		if in.TagIDs != nil {
			var tags []models.Tag
			if err := tx.Where("id IN ?", in.TagIDs).Find(&tags).Error; err != nil {
				return err
			}
			if err := tx.Model(&article).Association("Tags").Replace(tags); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Cache.Delete(ctx, cache.ArticleKey(articleID))
	return nil
}

// Delete entfernt einen Artikel samt Detail-Snapshot und Fast-Counter.
func (s *ArticleService) Delete(ctx context.Context, articleID uint) error {
	var article models.Article
	if err := s.DB.WithContext(ctx).First(&article, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := s.DB.WithContext(ctx).Select("Tags").Delete(&article).Error; err != nil {
		return err
	}
	s.Cache.Delete(ctx, cache.ArticleKey(articleID), cache.ArticleViewsKey(articleID))
	return nil
}

// Like registriert ein Like; eingeloggte Nutzer werden über die UserID
// dedupliziert, anonyme über die Client-IP. Der Zähler wird row-level in der
// DB erhöht, nie read-modify-write im Anwendungscode.
func (s *ArticleService) Like(ctx context.Context, articleID uint, userID *uint, clientIP string) (int, error) {
	var article models.Article
	if err := s.DB.WithContext(ctx).First(&article, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	existing, err := s.findLike(ctx, articleID, userID, clientIP)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return article.LikeCount, ErrAlreadyLiked
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		like := models.ArticleLike{ArticleID: articleID, UserID: userID, IPAddress: clientIP}
		if err := tx.Create(&like).Error; err != nil {
			return err
		}
		return tx.Model(&models.Article{}).Where("id = ?", articleID).
			Update("like_count", gorm.Expr("like_count + 1")).Error
	})
	if err != nil {
		return 0, err
	}
	return article.LikeCount + 1, nil
}

// Unlike nimmt ein Like zurück.
func (s *ArticleService) Unlike(ctx context.Context, articleID uint, userID *uint, clientIP string) (int, error) {
	var article models.Article
	if err := s.DB.WithContext(ctx).First(&article, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	existing, err := s.findLike(ctx, articleID, userID, clientIP)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		return article.LikeCount, ErrNotLiked
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(existing).Error; err != nil {
			return err
		}
		return tx.Model(&models.Article{}).
			Where("id = ? AND like_count > 0", articleID).
			Update("like_count", gorm.Expr("like_count - 1")).Error
	})
	if err != nil {
		return 0, err
	}
	count := article.LikeCount - 1
	if count < 0 {
		count = 0
	}
	return count, nil
}

// LikeStatus meldet, ob der Aufrufer bereits geliked hat.
func (s *ArticleService) LikeStatus(ctx context.Context, articleID uint, userID *uint, clientIP string) (liked bool, likeCount int, err error) {
	var article models.Article
	if err := s.DB.WithContext(ctx).First(&article, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, 0, ErrNotFound
		}
		return false, 0, err
	}
	existing, err := s.findLike(ctx, articleID, userID, clientIP)
	if err != nil {
		return false, 0, err
	}
	return existing != nil, article.LikeCount, nil
}

func (s *ArticleService) findLike(ctx context.Context, articleID uint, userID *uint, clientIP string) (*models.ArticleLike, error) {
	query := s.DB.WithContext(ctx).Where("article_id = ?", articleID)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	} else {
		if clientIP == "" {
			return nil, nil
		}
		query = query.Where("user_id IS NULL AND ip_address = ?", clientIP)
	}
	var like models.ArticleLike
	if err := query.First(&like).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &like, nil
}
