package domain

import "time"

// CartItem is a single line in the cart. Name and Price are captured when the
// item is first added and are not re-fetched from the menu.
type CartItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// LineTotal is the price of the line at its current quantity.
func (i CartItem) LineTotal() float64 {
	return i.Price * float64(i.Quantity)
}

// Cart is a read-only view of a session's cart with its derived values.
type Cart struct {
	UserID      string     `json:"user_id,omitempty"`
	Items       []CartItem `json:"items"`
	ItemCount   int        `json:"item_count"`
	TotalAmount float64    `json:"total_amount"`
}

// NewCart builds a view over items, computing the derived totals.
func NewCart(userID string, items []CartItem) *Cart {
	if items == nil {
		items = []CartItem{}
	}
	return &Cart{
		UserID:      userID,
		Items:       items,
		ItemCount:   ItemCount(items),
		TotalAmount: TotalAmount(items),
	}
}

// CartRecord is the remote, per-user replica of a cart. There is exactly one
// record per user.
type CartRecord struct {
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ItemCount returns the total number of units across all lines.
func ItemCount(items []CartItem) int {
	var count int
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

// TotalAmount returns the sum of all line totals.
func TotalAmount(items []CartItem) float64 {
	var total float64
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}

// FindItemIndex returns the index of the line with the given product ID, or -1.
func FindItemIndex(items []CartItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// CloneItems returns a copy of items that shares no backing array with it.
func CloneItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}

// MergeItems combines an account cart with a guest cart. Account lines keep
// their order and guest-only lines are appended in guest order. When both
// carts hold the same product the quantities are summed and the guest line's
// name and price win.
func MergeItems(account, guest []CartItem) []CartItem {
	merged := make([]CartItem, 0, len(account)+len(guest))
	index := make(map[string]int, len(account)+len(guest))

	fold := func(item CartItem) {
		if i, ok := index[item.ID]; ok {
			item.Quantity += merged[i].Quantity
			merged[i] = item
			return
		}
		index[item.ID] = len(merged)
		merged = append(merged, item)
	}

	for _, item := range account {
		fold(item)
	}
	for _, item := range guest {
		fold(item)
	}
	return merged
}
