package pantry

import (
	"strings"

	"github.com/unkn0wn-root/querycache/record"
)

func trim(s string) string { return strings.TrimSpace(s) }

func contains(s, lowerQ string) bool {
	return strings.Contains(strings.ToLower(s), lowerQ)
}

// FilterItems keeps items whose ingredient name contains q, ignoring case.
// A blank q keeps everything.
func FilterItems(items []record.PantryItem, q string) []record.PantryItem {
	q = strings.ToLower(trim(q))
	if q == "" {
		return items
	}
	var out []record.PantryItem
	for _, it := range items {
		if contains(it.Ingredient.Name, q) {
			out = append(out, it)
		}
	}
	return out
}

// FilterRecipes keeps recipes whose title or used or missed ingredients
// contain q, ignoring case. A blank q keeps everything.
func FilterRecipes(recipes []record.RecipeSummary, q string) []record.RecipeSummary {
	q = strings.ToLower(trim(q))
	if q == "" {
		return recipes
	}
	var out []record.RecipeSummary
	for _, r := range recipes {
		if matchRecipe(r, q) {
			out = append(out, r)
		}
	}
	return out
}

func matchRecipe(r record.RecipeSummary, q string) bool {
	if contains(r.Title, q) {
		return true
	}
	for _, lists := range [][]string{r.UsedIngredients, r.MissedIngredients} {
		for _, ing := range lists {
			if contains(ing, q) {
				return true
			}
		}
	}
	return false
}
