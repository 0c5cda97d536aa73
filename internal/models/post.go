package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// StringArray stores a list of strings as a JSON column so the same model
// works on both PostgreSQL and SQLite
type StringArray []string

// Scan implements the sql.Scanner interface for reading from database
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		*a = nil
		return nil
	}

	if len(data) == 0 {
		*a = []string{}
		return nil
	}

	return json.Unmarshal(data, a)
}

// Value implements the driver.Valuer interface for writing to database
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal([]string(a))
}

// Post is a shared audio post on the feed
type Post struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"not null;index" json:"user_id"`

	// Display data
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`

	// Audio file data
	AudioURL string  `gorm:"not null" json:"audio_url"`
	Duration float64 `json:"duration"` // seconds

	// Audio metadata used by feed filters
	BPM    int         `gorm:"index" json:"bpm"`
	Key    string      `json:"key"`
	Genres StringArray `gorm:"type:text" json:"genres"`

	// Engagement metrics
	LikeCount    int `gorm:"default:0" json:"like_count"`
	PlayCount    int `gorm:"default:0" json:"play_count"`
	CommentCount int `gorm:"default:0" json:"comment_count"`

	// Status
	IsPublic bool `gorm:"default:true" json:"is_public"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// HasGenre reports whether the post is tagged with the given genre
func (p *Post) HasGenre(genre string) bool {
	for _, g := range p.Genres {
		if g == genre {
			return true
		}
	}
	return false
}
