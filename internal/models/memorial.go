package models

import (
	"time"

	"gorm.io/datatypes"
)

// MemorialType distinguishes people from pets.
type MemorialType string

const (
	MemorialPerson MemorialType = "PERSON"
	MemorialPet    MemorialType = "PET"
)

// Valid reports whether t is a known type.
func (t MemorialType) Valid() bool {
	return t == MemorialPerson || t == MemorialPet
}

// MemorialStatus is the publication lifecycle of a memorial.
type MemorialStatus string

const (
	StatusDraft     MemorialStatus = "DRAFT"
	StatusPublished MemorialStatus = "PUBLISHED"
	StatusArchived  MemorialStatus = "ARCHIVED"
	StatusDeleted   MemorialStatus = "DELETED"
)

// Valid reports whether s is a known status.
func (s MemorialStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// Memorial is a remembrance page for a person or a pet. Rows are never hard deleted;
// removal moves the status to DELETED.
type Memorial struct {
	BaseModel

	Slug         string         `gorm:"uniqueIndex;size:191;not null" json:"slug"`
	SubjectName  string         `gorm:"size:100;not null" json:"subjectName"`
	Type         MemorialType   `gorm:"size:16;not null;index" json:"type"`
	IsPublic     bool           `gorm:"not null;index" json:"isPublic"`
	Status       MemorialStatus `gorm:"size:16;not null;default:DRAFT;index" json:"status"`
	BirthDate    *time.Time     `json:"birthDate,omitempty"`
	DeathDate    *time.Time     `json:"deathDate,omitempty"`
	Epitaph      string         `gorm:"size:255" json:"epitaph,omitempty"`
	Biography    string         `gorm:"type:text" json:"biography,omitempty"`
	Obituary     string         `gorm:"type:text" json:"obituary,omitempty"`
	Relationship string         `gorm:"size:64" json:"relationship,omitempty"`
	Species      string         `gorm:"size:64" json:"species,omitempty"`
	Breed        string         `gorm:"size:64" json:"breed,omitempty"`
	CoverImage   string         `gorm:"size:512" json:"coverImage,omitempty"`
	Profile      datatypes.JSON `json:"profile,omitempty"`

	ViewCount     int64 `gorm:"not null;default:0" json:"viewCount"`
	ShareCount    int64 `gorm:"not null;default:0" json:"shareCount"`
	LinkCopyCount int64 `gorm:"not null;default:0" json:"linkCopyCount"`
	QRViewCount   int64 `gorm:"column:qr_view_count;not null;default:0" json:"qrViewCount"`

	AuthorID    string     `gorm:"size:36;not null;index" json:"authorId"`
	Author      *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`

	Images   []Image   `gorm:"foreignKey:MemorialID" json:"images,omitempty"`
	Messages []Message `gorm:"foreignKey:MemorialID" json:"messages,omitempty"`
	Candles  []Candle  `gorm:"foreignKey:MemorialID" json:"candles,omitempty"`
	Likes    []Like    `gorm:"foreignKey:MemorialID" json:"likes,omitempty"`
	Tags     []Tag     `gorm:"many2many:memorial_tags;" json:"tags,omitempty"`
}

// IsVisible reports whether anonymous visitors may read the memorial.
func (m *Memorial) IsVisible() bool {
	return m != nil && m.Status == StatusPublished && m.IsPublic
}

// Image is an uploaded photo. URL points at the optimised rendition.
type Image struct {
	BaseModel

	MemorialID   string `gorm:"size:36;not null;index" json:"memorialId"`
	UploaderID   string `gorm:"size:36;not null;index" json:"uploaderId"`
	URL          string `gorm:"size:512;not null" json:"url"`
	ThumbnailURL string `gorm:"size:512" json:"thumbnailUrl"`
	StorageKey   string `gorm:"size:255;not null" json:"-"`
	ThumbKey     string `gorm:"size:255" json:"-"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	SizeBytes    int64  `json:"sizeBytes"`
	MimeType     string `gorm:"size:32" json:"mimeType"`
	Caption      string `gorm:"size:255" json:"caption,omitempty"`
	IsMain       bool   `gorm:"not null;default:false" json:"isMain"`
}

// MessageStatus is the moderation state of a guestbook message.
type MessageStatus string

const (
	MessagePending  MessageStatus = "PENDING"
	MessageApproved MessageStatus = "APPROVED"
	MessageRejected MessageStatus = "REJECTED"
)

// Message is a guestbook entry. Anonymous visitors leave messages with a name only.
type Message struct {
	BaseModel

	MemorialID string        `gorm:"size:36;not null;index" json:"memorialId"`
	AuthorID   *string       `gorm:"size:36;index" json:"authorId,omitempty"`
	Author     *User         `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	GuestName  string        `gorm:"size:64" json:"guestName,omitempty"`
	Content    string        `gorm:"type:text;not null" json:"content"`
	Status     MessageStatus `gorm:"size:16;not null;default:PENDING;index" json:"status"`
}

// Candle is a virtual candle lit on a memorial.
type Candle struct {
	BaseModel

	MemorialID string    `gorm:"size:36;not null;index" json:"memorialId"`
	UserID     *string   `gorm:"size:36;index" json:"userId,omitempty"`
	User       *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	GuestName  string    `gorm:"size:64" json:"guestName,omitempty"`
	Message    string    `gorm:"size:255" json:"message,omitempty"`
	ExpiresAt  time.Time `gorm:"index" json:"expiresAt"`
}

// Like is a user's like on a memorial; one per user and memorial.
type Like struct {
	BaseModel

	MemorialID string `gorm:"size:36;not null;uniqueIndex:idx_like_memorial_user" json:"memorialId"`
	UserID     string `gorm:"size:36;not null;uniqueIndex:idx_like_memorial_user" json:"userId"`
	User       *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Tag labels memorials for discovery.
type Tag struct {
	BaseModel

	Name string `gorm:"uniqueIndex;size:32;not null" json:"name"`
}

// DigitalLifeMessage is one turn of a conversation with the memorial's persona.
type DigitalLifeMessage struct {
	BaseModel

	MemorialID string `gorm:"size:36;not null;index:idx_digital_life_thread" json:"memorialId"`
	UserID     string `gorm:"size:36;not null;index:idx_digital_life_thread" json:"userId"`
	Role       string `gorm:"size:16;not null" json:"role"`
	Content    string `gorm:"type:text;not null" json:"content"`
}
