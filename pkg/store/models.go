package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type BookModel struct {
	ID          string `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	Description string `gorm:"type:text"`
	Price       string `gorm:"type:numeric(20,9);not null"`
	CoverKey    string
	ContentKey  string
	Author      string    `gorm:"not null"`
	Category    string    `gorm:"not null;index"`
	Featured    bool      `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type UserModel struct {
	ID            string `gorm:"primaryKey"`
	TelegramID    string `gorm:"uniqueIndex;not null"`
	FirstName     string `gorm:"not null"`
	LastName      string
	PhotoURL      string
	WalletAddress string
	IsAdmin       bool      `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time
}

// PurchaseModel rows are never updated or deleted. WalletResult keeps the
// normalized wallet-layer result for audit.
type PurchaseModel struct {
	ID             string `gorm:"primaryKey"`
	UserID         string `gorm:"not null;index"`
	BookID         string `gorm:"not null;index"`
	TransactionRef string `gorm:"not null"`
	WalletResult   datatypes.JSON
	PurchasedAt    time.Time `gorm:"not null;index"`
}

type CommentModel struct {
	ID        string `gorm:"primaryKey"`
	BookID    string `gorm:"not null;index"`
	UserID    string `gorm:"not null;index"`
	Text      string `gorm:"type:text;not null"`
	Rating    *int
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time
}
