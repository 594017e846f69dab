package domain

import "time"

// EntitlementSource tells callers whether an entitlement came from the
// durable store or from the session-local snapshot fallback.
type EntitlementSource string

const (
	SourceDurable        EntitlementSource = "durable"
	SourceCachedFallback EntitlementSource = "cached"
)

type Book struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       string    `json:"price"` // decimal TON amount, e.g. "2.5"
	CoverKey    string    `json:"coverKey"`
	ContentKey  string    `json:"-"`
	Author      string    `json:"author"`
	Category    string    `json:"category"`
	Featured    bool      `json:"featured"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type User struct {
	ID            string    `json:"id"`
	TelegramID    string    `json:"telegramId"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName,omitempty"`
	PhotoURL      string    `json:"photoUrl,omitempty"`
	WalletAddress string    `json:"walletAddress,omitempty"`
	IsAdmin       bool      `json:"isAdmin"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// DisplayName joins the name parts the way the storefront shows them.
func (u User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Purchase is append-only: one record per successful payment.
type Purchase struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	BookID         string    `json:"bookId"`
	TransactionRef string    `json:"transactionRef"`
	PurchasedAt    time.Time `json:"purchasedAt"`
}

type Comment struct {
	ID         string    `json:"id"`
	BookID     string    `json:"bookId"`
	UserID     string    `json:"userId"`
	AuthorName string    `json:"authorName,omitempty"`
	Text       string    `json:"text"`
	Rating     *int      `json:"rating,omitempty"` // 1..5 when set
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Entitlement is the right to download one book, tagged with where the
// record came from so callers can distinguish provisional from confirmed.
type Entitlement struct {
	BookID string            `json:"bookId"`
	Source EntitlementSource `json:"source"`
}

type Statistics struct {
	TotalUsers     int `json:"totalUsers"`
	TotalBooks     int `json:"totalBooks"`
	TotalPurchases int `json:"totalPurchases"`
	FeaturedBooks  int `json:"featuredBooks"`
}
