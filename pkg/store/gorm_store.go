package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"spacebooks/pkg/domain"
)

const migrateLockID int64 = 84218421

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&BookModel{}, &UserModel{}, &PurchaseModel{}, &CommentModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveBook stores or replaces a book record.
func (s *GormStore) SaveBook(b domain.Book) error {
	model := bookToModel(b)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "price", "cover_key", "content_key", "author", "category", "featured", "updated_at"}),
	}).Create(&model).Error
}

// UpdateBook applies a partial field set to a book.
func (s *GormStore) UpdateBook(id string, upd BookUpdate) (domain.Book, bool, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if upd.Title != nil {
		updates["title"] = *upd.Title
	}
	if upd.Description != nil {
		updates["description"] = *upd.Description
	}
	if upd.Price != nil {
		updates["price"] = *upd.Price
	}
	if upd.CoverKey != nil {
		updates["cover_key"] = *upd.CoverKey
	}
	if upd.ContentKey != nil {
		updates["content_key"] = *upd.ContentKey
	}
	if upd.Author != nil {
		updates["author"] = *upd.Author
	}
	if upd.Category != nil {
		updates["category"] = *upd.Category
	}
	if upd.Featured != nil {
		updates["featured"] = *upd.Featured
	}
	res := s.db.Model(&BookModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return domain.Book{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Book{}, false, nil
	}
	return s.GetBook(id)
}

// ListBooks returns all books, newest first.
func (s *GormStore) ListBooks() ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// DeleteBook removes a book and its comments. Purchase records stay.
func (s *GormStore) DeleteBook(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&CommentModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&BookModel{}, "id = ?", id).Error
	})
}

// BookCount returns the number of books.
func (s *GormStore) BookCount() (int, error) {
	var count int64
	if err := s.db.Model(&BookModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// FeaturedBookCount returns the number of featured books.
func (s *GormStore) FeaturedBookCount() (int, error) {
	var count int64
	if err := s.db.Model(&BookModel{}).Where("featured = ?", true).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "photo_url", "wallet_address", "is_admin", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByTelegramID looks up a user by the external auth identifier.
func (s *GormStore) GetUserByTelegramID(telegramID string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("telegram_id = ?", telegramID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// AddPurchase records one successful payment. walletResult is the
// normalized wallet-layer result JSON kept for audit.
func (s *GormStore) AddPurchase(p domain.Purchase, walletResult []byte) error {
	model := PurchaseModel{
		ID:             p.ID,
		UserID:         p.UserID,
		BookID:         p.BookID,
		TransactionRef: p.TransactionRef,
		WalletResult:   walletResult,
		PurchasedAt:    p.PurchasedAt,
	}
	return s.db.Create(&model).Error
}

// ListPurchasesByUser returns all purchases for a user.
func (s *GormStore) ListPurchasesByUser(userID string) ([]domain.Purchase, error) {
	var models []PurchaseModel
	if err := s.db.Where("user_id = ?", userID).Order("purchased_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Purchase, 0, len(models))
	for _, m := range models {
		res = append(res, domain.Purchase{
			ID:             m.ID,
			UserID:         m.UserID,
			BookID:         m.BookID,
			TransactionRef: m.TransactionRef,
			PurchasedAt:    m.PurchasedAt,
		})
	}
	return res, nil
}

// PurchaseCount returns number of purchases.
func (s *GormStore) PurchaseCount() (int, error) {
	var count int64
	if err := s.db.Model(&PurchaseModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// AddComment records a comment and returns it joined with the author name.
func (s *GormStore) AddComment(c domain.Comment) (domain.Comment, error) {
	model := commentToModel(c)
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Comment{}, err
	}
	saved, _, err := s.GetComment(model.ID)
	return saved, err
}

type commentRow struct {
	CommentModel
	FirstName string
	LastName  string
}

// ListCommentsByBook returns comments newest first, each joined with the
// commenter's display name.
func (s *GormStore) ListCommentsByBook(bookID string) ([]domain.Comment, error) {
	var rows []commentRow
	err := s.db.Model(&CommentModel{}).
		Select("comment_models.*, user_models.first_name, user_models.last_name").
		Joins("LEFT JOIN user_models ON user_models.id = comment_models.user_id").
		Where("comment_models.book_id = ?", bookID).
		Order("comment_models.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.Comment, 0, len(rows))
	for _, row := range rows {
		res = append(res, commentFromRow(row))
	}
	return res, nil
}

// GetComment retrieves one comment with its author name.
func (s *GormStore) GetComment(id string) (domain.Comment, bool, error) {
	var row commentRow
	err := s.db.Model(&CommentModel{}).
		Select("comment_models.*, user_models.first_name, user_models.last_name").
		Joins("LEFT JOIN user_models ON user_models.id = comment_models.user_id").
		Where("comment_models.id = ?", id).
		Scan(&row).Error
	if err != nil {
		return domain.Comment{}, false, err
	}
	if row.ID == "" {
		return domain.Comment{}, false, nil
	}
	return commentFromRow(row), true, nil
}

// UpdateComment changes text and rating of a comment.
func (s *GormStore) UpdateComment(id string, text string, rating *int) (domain.Comment, bool, error) {
	res := s.db.Model(&CommentModel{}).Where("id = ?", id).Updates(map[string]any{
		"text":       text,
		"rating":     rating,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return domain.Comment{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Comment{}, false, nil
	}
	return s.GetComment(id)
}

// DeleteComment removes a comment.
func (s *GormStore) DeleteComment(id string) error {
	return s.db.Delete(&CommentModel{}, "id = ?", id).Error
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		Price:       b.Price,
		CoverKey:    b.CoverKey,
		ContentKey:  b.ContentKey,
		Author:      b.Author,
		Category:    b.Category,
		Featured:    b.Featured,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Price:       m.Price,
		CoverKey:    m.CoverKey,
		ContentKey:  m.ContentKey,
		Author:      m.Author,
		Category:    m.Category,
		Featured:    m.Featured,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:            u.ID,
		TelegramID:    u.TelegramID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		PhotoURL:      u.PhotoURL,
		WalletAddress: u.WalletAddress,
		IsAdmin:       u.IsAdmin,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:            m.ID,
		TelegramID:    m.TelegramID,
		FirstName:     m.FirstName,
		LastName:      m.LastName,
		PhotoURL:      m.PhotoURL,
		WalletAddress: m.WalletAddress,
		IsAdmin:       m.IsAdmin,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func commentToModel(c domain.Comment) CommentModel {
	return CommentModel{
		ID:        c.ID,
		BookID:    c.BookID,
		UserID:    c.UserID,
		Text:      c.Text,
		Rating:    c.Rating,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func commentFromRow(row commentRow) domain.Comment {
	author := domain.User{FirstName: row.FirstName, LastName: row.LastName}
	return domain.Comment{
		ID:         row.ID,
		BookID:     row.BookID,
		UserID:     row.UserID,
		AuthorName: author.DisplayName(),
		Text:       row.Text,
		Rating:     row.Rating,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}
