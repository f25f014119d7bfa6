package cache

import (
	"fmt"
	"strings"
	"time"
)

// Zeitformate für Cache-Payloads, vom Frontend so erwartet.
const (
	timeLayout     = "2006-01-02 15:04:05"
	dateLayout     = "2006-01-02"
	clockLayout    = "15:04:05"
	rfc3339Variant = time.RFC3339
)

// Time serialisiert sich als "YYYY-MM-DD HH:MM:SS" statt RFC3339.
type Time struct {
	time.Time
}

// MarshalJSON formatiert den Zeitwert menschenlesbar.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(fmt.Sprintf("%q", t.Format(timeLayout))), nil
}

// UnmarshalJSON akzeptiert die lesbaren Formate und RFC3339.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{timeLayout, dateLayout, clockLayout, rfc3339Variant} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("cache: unparsable time %q", s)
}

// TagItem ist die Tag-Darstellung innerhalb eines Artikel-Snapshots.
type TagItem struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ArticleSnapshot ist der gecachte Artikel-Detail-Datensatz. ViewCount wird
// beim Lesen mit dem Fast-Counter überlagert, der Snapshot selbst trägt nur
// den Stand zum Cache-Zeitpunkt.
type ArticleSnapshot struct {
	ID                 uint      `json:"id"`
	Title              string    `json:"title"`
	Summary            string    `json:"summary"`
	Content            string    `json:"content"`
	Cover              string    `json:"cover"`
	CategoryID         *uint     `json:"category_id"`
	CategoryName       string    `json:"categoryName"`
	Tags               []TagItem `json:"tags"`
	ViewCount          int64     `json:"viewCount"`
	CommentCount       int       `json:"commentCount"`
	LikeCount          int       `json:"likeCount"`
	IsPublished        bool      `json:"is_published"`
	IsTop              bool      `json:"is_top"`
	IsRecommend        bool      `json:"is_recommend"`
	IsHidden           bool      `json:"is_hidden"`
	IsProtected        bool      `json:"is_protected"`
	ProtectionQuestion string    `json:"protection_question,omitempty"`
	CreatedAt          Time      `json:"createdAt"`
	UpdatedAt          Time      `json:"updatedAt"`
}

// ResourceListItem ist ein Eintrag einer gecachten Ressourcen-Seite.
type ResourceListItem struct {
	ID        uint   `json:"id"`
	Key       string `json:"key"`
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Size      int64  `json:"size"`
	CreatedAt Time   `json:"created_at"`
}

// ResourceListPage ist eine gecachte Seite der Ressourcen-Liste.
type ResourceListPage struct {
	Records []ResourceListItem `json:"records"`
	Total   int64              `json:"total"`
	Current int                `json:"current"`
	Size    int                `json:"size"`
}
