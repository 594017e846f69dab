package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"spacebooks/internal/telegramauth"
	"spacebooks/internal/wallet"
	"spacebooks/pkg/domain"
	"spacebooks/pkg/store"
)

type fakeObjects struct {
	puts    map[string]int64
	deletes []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{puts: make(map[string]int64)}
}

func (f *fakeObjects) Put(_ context.Context, key string, _ io.Reader, size int64, _ string) error {
	f.puts[key] = size
	return nil
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.deletes = append(f.deletes, key)
	return nil
}

type connectedWallet struct{}

func (connectedWallet) Session(context.Context, string) (wallet.Session, error) {
	return wallet.Session{Connected: true, Address: "UQCwallet"}, nil
}

func (connectedWallet) SendTransaction(context.Context, string, wallet.PaymentRequest) (wallet.TransactionResult, error) {
	return wallet.TransactionResult{Kind: wallet.KindBoc, Ref: "boc-1"}, nil
}

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *fakeObjects) {
	t.Helper()
	mem := store.NewMemoryStore()
	objects := newFakeObjects()
	a, err := New(Config{
		Store:            mem,
		Objects:          objects,
		Connector:        connectedWallet{},
		RecipientAddress: "UQCrecipient",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, mem, objects
}

func seedUser(t *testing.T, a *App) domain.User {
	t.Helper()
	user, err := a.UpsertTelegramUser(context.Background(), telegramauth.Profile{
		TelegramID: "tg1", FirstName: "Jane", LastName: "Doe",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedBook(t *testing.T, a *App) domain.Book {
	t.Helper()
	book, err := a.CreateBook(BookInput{
		Title: "Dune", Author: "Frank Herbert", Category: "sci-fi", Price: "2.5",
	})
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}
	return book
}

func TestCreateBookValidatesBeforeStore(t *testing.T) {
	a, mem, _ := newTestApp(t)
	cases := []struct {
		in   BookInput
		want error
	}{
		{BookInput{Title: " ", Author: "a", Category: "c", Price: "1"}, ErrTitleRequired},
		{BookInput{Title: "t", Author: "", Category: "c", Price: "1"}, ErrAuthorRequired},
		{BookInput{Title: "t", Author: "a", Category: " ", Price: "1"}, ErrCategoryRequired},
		{BookInput{Title: "t", Author: "a", Category: "c", Price: "free"}, ErrInvalidPrice},
		{BookInput{Title: "t", Author: "a", Category: "c", Price: ""}, ErrInvalidPrice},
	}
	for _, tc := range cases {
		if _, err := a.CreateBook(tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("input %+v: err = %v, want %v", tc.in, err, tc.want)
		}
	}
	if n, _ := mem.BookCount(); n != 0 {
		t.Fatalf("invalid input must not reach the store, found %d books", n)
	}
}

func TestCreateBookTrimsFields(t *testing.T) {
	a, _, _ := newTestApp(t)
	book, err := a.CreateBook(BookInput{
		Title: "  Dune ", Author: " Frank Herbert ", Category: " sci-fi ", Price: " 2.5 ",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if book.Title != "Dune" || book.Author != "Frank Herbert" || book.Price != "2.5" {
		t.Fatalf("fields not trimmed: %+v", book)
	}
}

func TestUpdateBookPartial(t *testing.T) {
	a, _, _ := newTestApp(t)
	book := seedBook(t, a)

	updated, err := a.UpdateBook(book.ID, BookInput{Price: "3.1"}, BookFieldSet{Price: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Price != "3.1" || updated.Title != "Dune" {
		t.Fatalf("partial update touched the wrong fields: %+v", updated)
	}

	if _, err := a.UpdateBook(book.ID, BookInput{Price: "-1"}, BookFieldSet{Price: true}); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("err = %v, want ErrInvalidPrice", err)
	}
	if _, err := a.UpdateBook("missing", BookInput{Title: "x"}, BookFieldSet{Title: true}); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("err = %v, want ErrBookNotFound", err)
	}
}

func TestDeleteBookRemovesObjects(t *testing.T) {
	a, _, objects := newTestApp(t)
	book := seedBook(t, a)
	if _, err := a.UploadContent(context.Background(), book.ID, "dune.epub", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("upload content: %v", err)
	}

	if err := a.DeleteBook(context.Background(), book.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(objects.deletes) != 1 || !strings.Contains(objects.deletes[0], book.ID) {
		t.Fatalf("stored objects should be removed with the book, got %v", objects.deletes)
	}
	if _, err := a.GetBook(book.ID); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("err = %v, want ErrBookNotFound", err)
	}
}

func TestUpsertTelegramUserKeepsWalletAndAdmin(t *testing.T) {
	a, _, _ := newTestApp(t)
	user := seedUser(t, a)
	if _, err := a.SetWalletAddress(context.Background(), user.ID, "UQCwallet"); err != nil {
		t.Fatalf("set wallet: %v", err)
	}
	if _, err := a.GrantAdmin(context.Background(), user.ID); err != nil {
		t.Fatalf("grant admin: %v", err)
	}

	again, err := a.UpsertTelegramUser(context.Background(), telegramauth.Profile{
		TelegramID: "tg1", FirstName: "Janet",
	})
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("re-auth must not create a second user")
	}
	if again.FirstName != "Janet" {
		t.Fatalf("profile fields should refresh, got %q", again.FirstName)
	}
	if again.WalletAddress != "UQCwallet" || !again.IsAdmin {
		t.Fatalf("wallet address and admin flag must survive re-auth: %+v", again)
	}
}

func TestCommentOwnershipRules(t *testing.T) {
	a, _, _ := newTestApp(t)
	book := seedBook(t, a)
	author := seedUser(t, a)
	other, err := a.UpsertTelegramUser(context.Background(), telegramauth.Profile{TelegramID: "tg2", FirstName: "Max"})
	if err != nil {
		t.Fatalf("second user: %v", err)
	}

	comment, err := a.AddComment(author, book.ID, "great read", nil)
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}

	if _, err := a.UpdateComment(other, comment.ID, "edited", nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-author edit: err = %v, want ErrForbidden", err)
	}
	if err := a.DeleteComment(other, comment.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-author delete: err = %v, want ErrForbidden", err)
	}

	admin, err := a.GrantAdmin(context.Background(), other.ID)
	if err != nil {
		t.Fatalf("grant admin: %v", err)
	}
	if err := a.DeleteComment(admin, comment.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestAddCommentValidation(t *testing.T) {
	a, _, _ := newTestApp(t)
	book := seedBook(t, a)
	user := seedUser(t, a)

	if _, err := a.AddComment(user, book.ID, "  ", nil); !errors.Is(err, ErrCommentTextRequired) {
		t.Fatalf("err = %v, want ErrCommentTextRequired", err)
	}
	bad := 6
	if _, err := a.AddComment(user, book.ID, "x", &bad); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("err = %v, want ErrInvalidRating", err)
	}
	five := 5
	if _, err := a.AddComment(user, book.ID, "x", &five); err != nil {
		t.Fatalf("rating 5 should pass: %v", err)
	}
}

func TestDownloadRequiresEntitlement(t *testing.T) {
	a, _, _ := newTestApp(t)
	book := seedBook(t, a)
	user := seedUser(t, a)
	if _, err := a.UploadContent(context.Background(), book.ID, "dune.epub", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("upload content: %v", err)
	}

	if _, err := a.DownloadURL(context.Background(), user.ID, book.ID); !errors.Is(err, ErrNotEntitled) {
		t.Fatalf("err = %v, want ErrNotEntitled", err)
	}

	if _, err := a.BuyBook(context.Background(), user.ID, book.ID); err != nil {
		t.Fatalf("buy: %v", err)
	}
	url, err := a.DownloadURL(context.Background(), user.ID, book.ID)
	if err != nil {
		t.Fatalf("download after purchase: %v", err)
	}
	if !strings.Contains(url, book.ID) {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestStatistics(t *testing.T) {
	a, _, _ := newTestApp(t)
	user := seedUser(t, a)
	seedBook(t, a)
	featured, err := a.CreateBook(BookInput{
		Title: "Hyperion", Author: "Dan Simmons", Category: "sci-fi", Price: "1", Featured: true,
	})
	if err != nil {
		t.Fatalf("create featured: %v", err)
	}
	if _, err := a.BuyBook(context.Background(), user.ID, featured.ID); err != nil {
		t.Fatalf("buy: %v", err)
	}

	stats, err := a.Statistics(context.Background())
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	want := domain.Statistics{TotalUsers: 1, TotalBooks: 2, TotalPurchases: 1, FeaturedBooks: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}
