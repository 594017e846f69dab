package app

import "errors"

var (
	ErrBookNotFound    = errors.New("book not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrCommentNotFound = errors.New("comment not found")

	// ErrForbidden is returned when a caller acts on a resource it does
	// not own and is not an admin.
	ErrForbidden = errors.New("forbidden")

	// ErrNotEntitled is returned when a download is requested for a book
	// the user has not purchased.
	ErrNotEntitled = errors.New("book not purchased")

	ErrTitleRequired       = errors.New("title required")
	ErrAuthorRequired      = errors.New("author required")
	ErrCategoryRequired    = errors.New("category required")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrCommentTextRequired = errors.New("comment text required")
	ErrInvalidRating       = errors.New("rating must be between 1 and 5")

	ErrWalletAddressRequired = errors.New("wallet address required")
	ErrLanguageRequired      = errors.New("language code required")

	ErrBookContentMissing = errors.New("book content not uploaded")
)
