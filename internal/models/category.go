package models

import "strings"

// CategoryOther is the fallback category key.
const CategoryOther = "other"

// Category is a selectable expense category.
type Category struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Categories lists the known categories in display order.
var Categories = []Category{
	{Key: "food", Label: "Food"},
	{Key: "transport", Label: "Transport"},
	{Key: "shopping", Label: "Shopping"},
	{Key: "home", Label: "Home"},
	{Key: "entertainment", Label: "Entertainment"},
	{Key: CategoryOther, Label: "Other"},
}

// CategoryTotal is the amount spent in one category.
type CategoryTotal struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	AmountCents int64  `json:"amountCents"`
	Count       int    `json:"count"`
}

// NormalizeCategory maps free input to a known category key.
// Unknown or empty input becomes CategoryOther.
func NormalizeCategory(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	for _, c := range Categories {
		if c.Key == key {
			return key
		}
	}
	return CategoryOther
}

// CategoryLabel returns the display label for a category key.
func CategoryLabel(raw string) string {
	key := NormalizeCategory(raw)
	for _, c := range Categories {
		if c.Key == key {
			return c.Label
		}
	}
	return "Other"
}
