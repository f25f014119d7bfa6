package models

import "time"

// Resource repräsentiert eine hochgeladene Datei im Objektspeicher.
type Resource struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	// Objekt-Key im Bucket, ohne Signatur-Parameter
	Key       string `json:"key" gorm:"size:500;uniqueIndex;not null"`
	Name      string `json:"name" gorm:"size:255;default:''"`
	MediaType string `json:"media_type" gorm:"size:50;index"` // image, video, ...
	Size      int64  `json:"size" gorm:"default:0"`

	UserID *uint `json:"user_id" gorm:"index"`
}
