package store

import (
	"sync"
	"time"

	"spacebooks/pkg/domain"
)

// MemoryStore keeps all records in-process. Used by tests and local runs
// without Postgres.
type MemoryStore struct {
	mu        sync.RWMutex
	books     map[string]domain.Book
	order     []string // book insertion order
	users     map[string]domain.User
	tg        map[string]string // telegram id -> user ID
	purchases []domain.Purchase
	comments  map[string]domain.Comment
	commented []string // comment insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:    make(map[string]domain.Book),
		users:    make(map[string]domain.User),
		tg:       make(map[string]string),
		comments: make(map[string]domain.Comment),
	}
}

// SaveBook stores or replaces a book record.
func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; !exists {
		m.order = append(m.order, b.ID)
	}
	m.books[b.ID] = b
	return nil
}

// UpdateBook applies a partial field set.
func (m *MemoryStore) UpdateBook(id string, upd BookUpdate) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return domain.Book{}, false, nil
	}
	if upd.Title != nil {
		b.Title = *upd.Title
	}
	if upd.Description != nil {
		b.Description = *upd.Description
	}
	if upd.Price != nil {
		b.Price = *upd.Price
	}
	if upd.CoverKey != nil {
		b.CoverKey = *upd.CoverKey
	}
	if upd.ContentKey != nil {
		b.ContentKey = *upd.ContentKey
	}
	if upd.Author != nil {
		b.Author = *upd.Author
	}
	if upd.Category != nil {
		b.Category = *upd.Category
	}
	if upd.Featured != nil {
		b.Featured = *upd.Featured
	}
	b.UpdatedAt = time.Now().UTC()
	m.books[id] = b
	return b, true, nil
}

// ListBooks returns books newest first.
func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if b, ok := m.books[m.order[i]]; ok {
			res = append(res, b)
		}
	}
	return res, nil
}

// GetBook retrieves a book by ID.
func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// DeleteBook removes a book and its comments.
func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, id)
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	kept := m.commented[:0]
	for _, cid := range m.commented {
		if c, ok := m.comments[cid]; ok && c.BookID == id {
			delete(m.comments, cid)
			continue
		}
		kept = append(kept, cid)
	}
	m.commented = kept
	return nil
}

// BookCount returns number of books.
func (m *MemoryStore) BookCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.books), nil
}

// FeaturedBookCount returns number of featured books.
func (m *MemoryStore) FeaturedBookCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, b := range m.books {
		if b.Featured {
			count++
		}
	}
	return count, nil
}

// SaveUser registers or updates a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	if u.TelegramID != "" {
		m.tg[u.TelegramID] = u.ID
	}
	return nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByTelegramID looks up a user by the external auth identifier.
func (m *MemoryStore) GetUserByTelegramID(telegramID string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.tg[telegramID]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// UserCount returns number of users.
func (m *MemoryStore) UserCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// AddPurchase appends a purchase record.
func (m *MemoryStore) AddPurchase(p domain.Purchase, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases = append(m.purchases, p)
	return nil
}

// ListPurchasesByUser returns purchases for a user in insertion order.
func (m *MemoryStore) ListPurchasesByUser(userID string) ([]domain.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Purchase, 0)
	for _, p := range m.purchases {
		if p.UserID == userID {
			res = append(res, p)
		}
	}
	return res, nil
}

// PurchaseCount returns number of purchases.
func (m *MemoryStore) PurchaseCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.purchases), nil
}

// AddComment records a comment.
func (m *MemoryStore) AddComment(c domain.Comment) (domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[c.ID] = c
	m.commented = append(m.commented, c.ID)
	return m.withAuthorLocked(c), nil
}

// ListCommentsByBook returns comments newest first with author names.
func (m *MemoryStore) ListCommentsByBook(bookID string) ([]domain.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Comment, 0)
	for i := len(m.commented) - 1; i >= 0; i-- {
		if c, ok := m.comments[m.commented[i]]; ok && c.BookID == bookID {
			res = append(res, m.withAuthorLocked(c))
		}
	}
	return res, nil
}

// GetComment retrieves one comment.
func (m *MemoryStore) GetComment(id string) (domain.Comment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.comments[id]
	if !ok {
		return domain.Comment{}, false, nil
	}
	return m.withAuthorLocked(c), true, nil
}

// UpdateComment changes text and rating.
func (m *MemoryStore) UpdateComment(id string, text string, rating *int) (domain.Comment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return domain.Comment{}, false, nil
	}
	c.Text = text
	c.Rating = rating
	c.UpdatedAt = time.Now().UTC()
	m.comments[id] = c
	return m.withAuthorLocked(c), true, nil
}

// DeleteComment removes a comment.
func (m *MemoryStore) DeleteComment(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.comments, id)
	filtered := m.commented[:0]
	for _, item := range m.commented {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.commented = filtered
	return nil
}

func (m *MemoryStore) withAuthorLocked(c domain.Comment) domain.Comment {
	if u, ok := m.users[c.UserID]; ok {
		c.AuthorName = u.DisplayName()
	}
	return c
}
