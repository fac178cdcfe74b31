package domain

import "time"

type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"-"`
	UserID    string     `bson:"user_id" json:"user_id"`
	Lines     []CartLine `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

// MaxQuantity caps a single line. It keeps price × quantity, and the sum over
// a cart, well inside int64 cents.
const MaxQuantity = 999

// CartLine is one (product, size) entry. Quantity stays within
// [1, MaxQuantity]; a change that would leave that range is rejected and the
// line is only deleted by removing it.
type CartLine struct {
	ProductID string    `bson:"product_id" json:"product_id"`
	Size      string    `bson:"size" json:"size"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
}

type LineKey struct {
	ProductID string
	Size      string
}

func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Size: l.Size}
}
