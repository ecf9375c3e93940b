package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

// CategoryFrequency is the item count and total for one category name.
type CategoryFrequency struct {
	CategoryName string `json:"categoryName"`
	ItemCount    int    `json:"itemCount"`
	TotalAmount  int64  `json:"totalAmount"`
}

// DefaultCategories is the reference set seeded into every store.
func DefaultCategories() []SpendingCategory {
	return []SpendingCategory{
		{ID: "food", Name: "Food", Description: "Groceries, restaurants and takeaway"},
		{ID: "transport", Name: "Transport", Description: "Public transport, fuel, taxis"},
		{ID: "entertainment", Name: "Entertainment", Description: "Movies, games, events"},
		{ID: "shopping", Name: "Shopping", Description: "Clothes, gadgets and other goods"},
		{ID: "health", Name: "Health", Description: "Pharmacy, gym, care"},
		{ID: "home", Name: "Home", Description: "Furniture, repairs, supplies"},
		{ID: "other", Name: "Other", Description: "Anything else"},
	}
}
