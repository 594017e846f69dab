package store

import "spacebooks/pkg/domain"

// BookUpdate carries a partial field set for catalog updates. Nil fields
// are left untouched; last write wins at the store.
type BookUpdate struct {
	Title       *string
	Description *string
	Price       *string
	CoverKey    *string
	ContentKey  *string
	Author      *string
	Category    *string
	Featured    *bool
}

// Store defines persistence operations for the catalog, users,
// purchases, and comments.
type Store interface {
	// books
	SaveBook(domain.Book) error
	UpdateBook(id string, upd BookUpdate) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)
	GetBook(id string) (domain.Book, bool, error)
	DeleteBook(id string) error
	BookCount() (int, error)
	FeaturedBookCount() (int, error)

	// users
	SaveUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByTelegramID(telegramID string) (domain.User, bool, error)
	UserCount() (int, error)

	// purchases (append-only)
	AddPurchase(domain.Purchase, []byte) error
	ListPurchasesByUser(userID string) ([]domain.Purchase, error)
	PurchaseCount() (int, error)

	// comments
	AddComment(domain.Comment) (domain.Comment, error)
	ListCommentsByBook(bookID string) ([]domain.Comment, error)
	GetComment(id string) (domain.Comment, bool, error)
	UpdateComment(id string, text string, rating *int) (domain.Comment, bool, error)
	DeleteComment(id string) error
}
