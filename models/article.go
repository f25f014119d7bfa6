package models

import "time"

// Article repräsentiert einen Blog-Artikel inkl. Zählern und Schutz-Feldern.
type Article struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title   string `json:"title" gorm:"size:200;not null"`
	Summary string `json:"summary" gorm:"size:500;default:''"`
	Content string `json:"content" gorm:"type:text;not null"`
	Cover   string `json:"cover" gorm:"size:500;default:''"`

	AuthorID   uint  `json:"author_id"`
	CategoryID *uint `json:"category_id" gorm:"index"`

	// Zähler: ViewCount ist nur eine Untergrenze, die aktuelle Zahl lebt
	// zwischen zwei Sync-Läufen im Redis-Fast-Counter.
	ViewCount    int `json:"view_count" gorm:"default:0"`
	LikeCount    int `json:"like_count" gorm:"default:0"`
	CommentCount int `json:"comment_count" gorm:"default:0"`

	IsPublished bool `json:"is_published" gorm:"default:true;index"`
	IsTop       bool `json:"is_top" gorm:"default:false"`
	IsRecommend bool `json:"is_recommend" gorm:"default:false"`
	// Versteckt: nicht in Listen, aber per Direktlink erreichbar
	IsHidden bool `json:"is_hidden" gorm:"default:false"`

	// Frage/Antwort-Schutz; Antwort bleibt Klartext (bestehender API-Vertrag,
	// Hashing würde den exakten String-Vergleich des Frontends brechen)
	IsProtected        bool   `json:"is_protected" gorm:"default:false"`
	ProtectionQuestion string `json:"protection_question" gorm:"size:255"`
	ProtectionAnswer   string `json:"-" gorm:"size:255"`

	Category *Category `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Tags     []Tag     `json:"tags,omitempty" gorm:"many2many:article_tags"`
}

// Category ist eine Artikel-Kategorie.
type Category struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:50;uniqueIndex;not null"`
	Description string    `json:"description" gorm:"size:255;default:''"`
	SortOrder   int       `json:"sort_order" gorm:"default:0"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tag ist ein Artikel-Tag.
type Tag struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:50;uniqueIndex;not null"`
	Color     string    `json:"color" gorm:"size:20;default:'#3b82f6'"`
	CreatedAt time.Time `json:"created_at"`
}

// ArticleLike ist ein Like-Eintrag; anonyme Nutzer werden über die IP dedupliziert.
type ArticleLike struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ArticleID uint      `json:"article_id" gorm:"index;not null"`
	UserID    *uint     `json:"user_id" gorm:"index"`
	IPAddress string    `json:"ip_address" gorm:"size:50"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (ArticleLike) TableName() string {
	return "article_likes"
}
