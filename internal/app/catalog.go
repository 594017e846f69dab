package app

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"spacebooks/internal/util"
	"spacebooks/internal/wallet"
	"spacebooks/pkg/domain"
	"spacebooks/pkg/store"
)

// BookInput carries the writable catalog fields.
type BookInput struct {
	Title       string
	Description string
	Price       string
	Author      string
	Category    string
	Featured    bool
}

// ListBooks returns the catalog, newest first.
func (a *App) ListBooks() ([]domain.Book, error) {
	return a.store.ListBooks()
}

// GetBook retrieves one book.
func (a *App) GetBook(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// CreateBook validates the input and adds a catalog entry. Nothing is
// written when validation fails.
func (a *App) CreateBook(in BookInput) (domain.Book, error) {
	in, err := normalizeBookInput(in)
	if err != nil {
		return domain.Book{}, err
	}
	now := time.Now().UTC()
	book := domain.Book{
		ID:          util.NewID(),
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Author:      in.Author,
		Category:    in.Category,
		Featured:    in.Featured,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// UpdateBook applies a partial update. Validation runs against the
// supplied fields before any store call; last write wins.
func (a *App) UpdateBook(id string, in BookInput, set BookFieldSet) (domain.Book, error) {
	upd := store.BookUpdate{}
	if set.Title {
		title := strings.TrimSpace(in.Title)
		if title == "" {
			return domain.Book{}, ErrTitleRequired
		}
		upd.Title = &title
	}
	if set.Description {
		description := strings.TrimSpace(in.Description)
		upd.Description = &description
	}
	if set.Price {
		price := strings.TrimSpace(in.Price)
		if _, err := wallet.Nanotons(price); err != nil {
			return domain.Book{}, ErrInvalidPrice
		}
		upd.Price = &price
	}
	if set.Author {
		author := strings.TrimSpace(in.Author)
		if author == "" {
			return domain.Book{}, ErrAuthorRequired
		}
		upd.Author = &author
	}
	if set.Category {
		category := strings.TrimSpace(in.Category)
		if category == "" {
			return domain.Book{}, ErrCategoryRequired
		}
		upd.Category = &category
	}
	if set.Featured {
		featured := in.Featured
		upd.Featured = &featured
	}

	book, ok, err := a.store.UpdateBook(id, upd)
	if err != nil {
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// BookFieldSet marks which BookInput fields an update carries.
type BookFieldSet struct {
	Title       bool
	Description bool
	Price       bool
	Author      bool
	Category    bool
	Featured    bool
}

// DeleteBook removes a book, its comments, and its stored objects.
// Purchase records stay.
func (a *App) DeleteBook(ctx context.Context, id string) error {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return ErrBookNotFound
	}
	if err := a.store.DeleteBook(id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	for _, key := range []string{book.ContentKey, book.CoverKey} {
		if strings.TrimSpace(key) == "" {
			continue
		}
		if err := a.objects.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete object %s: %w", key, err)
		}
	}
	return nil
}

// UploadContent stores the book's content file and records its key.
func (a *App) UploadContent(ctx context.Context, bookID, filename string, r io.Reader, size int64) (domain.Book, error) {
	if _, err := a.GetBook(bookID); err != nil {
		return domain.Book{}, err
	}
	key := buildObjectKey("content", bookID, filename)
	if err := a.objects.Put(ctx, key, r, size, contentTypeFor(filename)); err != nil {
		return domain.Book{}, fmt.Errorf("store content: %w", err)
	}
	book, ok, err := a.store.UpdateBook(bookID, store.BookUpdate{ContentKey: &key})
	if err != nil {
		return domain.Book{}, fmt.Errorf("record content key: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// UploadCover stores the book's cover image and records its key.
func (a *App) UploadCover(ctx context.Context, bookID, filename string, r io.Reader, size int64) (domain.Book, error) {
	if _, err := a.GetBook(bookID); err != nil {
		return domain.Book{}, err
	}
	key := buildObjectKey("covers", bookID, filename)
	if err := a.objects.Put(ctx, key, r, size, contentTypeFor(filename)); err != nil {
		return domain.Book{}, fmt.Errorf("store cover: %w", err)
	}
	book, ok, err := a.store.UpdateBook(bookID, store.BookUpdate{CoverKey: &key})
	if err != nil {
		return domain.Book{}, fmt.Errorf("record cover key: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// CoverURL returns a short-lived URL for the book cover, or "" when no
// cover has been uploaded.
func (a *App) CoverURL(ctx context.Context, bookID string) (string, error) {
	book, err := a.GetBook(bookID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(book.CoverKey) == "" {
		return "", nil
	}
	return a.objects.PresignGet(ctx, book.CoverKey, a.presignExpiry)
}

func normalizeBookInput(in BookInput) (BookInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Price = strings.TrimSpace(in.Price)
	in.Author = strings.TrimSpace(in.Author)
	in.Category = strings.TrimSpace(in.Category)
	if in.Title == "" {
		return in, ErrTitleRequired
	}
	if in.Author == "" {
		return in, ErrAuthorRequired
	}
	if in.Category == "" {
		return in, ErrCategoryRequired
	}
	if _, err := wallet.Nanotons(in.Price); err != nil {
		return in, ErrInvalidPrice
	}
	return in, nil
}

func contentTypeFor(filename string) string {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}

func buildObjectKey(kind, bookID, filename string) string {
	name := sanitizeFilename(filepath.Base(filename))
	if name == "" {
		name = "file"
	}
	return path.Join(kind, bookID, name)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
