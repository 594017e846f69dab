package app

import (
	"fmt"
	"strings"
	"time"

	"spacebooks/internal/util"
	"spacebooks/pkg/domain"
)

// ListComments returns a book's comments, newest first, with the
// commenter display name resolved.
func (a *App) ListComments(bookID string) ([]domain.Comment, error) {
	if _, err := a.GetBook(bookID); err != nil {
		return nil, err
	}
	return a.store.ListCommentsByBook(bookID)
}

// AddComment records a comment. Ownership of the book is not required;
// anyone signed in may comment.
func (a *App) AddComment(user domain.User, bookID, text string, rating *int) (domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Comment{}, ErrCommentTextRequired
	}
	if rating != nil && (*rating < 1 || *rating > 5) {
		return domain.Comment{}, ErrInvalidRating
	}
	if _, err := a.GetBook(bookID); err != nil {
		return domain.Comment{}, err
	}
	now := time.Now().UTC()
	comment := domain.Comment{
		ID:        util.NewID(),
		BookID:    bookID,
		UserID:    user.ID,
		Text:      text,
		Rating:    rating,
		CreatedAt: now,
		UpdatedAt: now,
	}
	saved, err := a.store.AddComment(comment)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("save comment: %w", err)
	}
	return saved, nil
}

// UpdateComment edits a comment. Only the author may edit.
func (a *App) UpdateComment(user domain.User, commentID, text string, rating *int) (domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Comment{}, ErrCommentTextRequired
	}
	if rating != nil && (*rating < 1 || *rating > 5) {
		return domain.Comment{}, ErrInvalidRating
	}
	existing, ok, err := a.store.GetComment(commentID)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("fetch comment: %w", err)
	}
	if !ok {
		return domain.Comment{}, ErrCommentNotFound
	}
	if existing.UserID != user.ID {
		return domain.Comment{}, ErrForbidden
	}
	updated, ok, err := a.store.UpdateComment(commentID, text, rating)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("update comment: %w", err)
	}
	if !ok {
		return domain.Comment{}, ErrCommentNotFound
	}
	return updated, nil
}

// DeleteComment removes a comment. The author or an admin may delete.
func (a *App) DeleteComment(user domain.User, commentID string) error {
	existing, ok, err := a.store.GetComment(commentID)
	if err != nil {
		return fmt.Errorf("fetch comment: %w", err)
	}
	if !ok {
		return ErrCommentNotFound
	}
	if existing.UserID != user.ID && !user.IsAdmin {
		return ErrForbidden
	}
	if err := a.store.DeleteComment(commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}
