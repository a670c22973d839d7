package record

import "github.com/unkn0wn-root/querycache"

// RecipeSummary is a recipe as listed by suggestions and search. Recipes not
// yet stored by the server have no ID, only an ExternalID.
type RecipeSummary struct {
	ID                    string   `json:"id,omitempty"`
	ExternalID            string   `json:"external_id"`
	Source                string   `json:"source"`
	Title                 string   `json:"title"`
	ImageURL              string   `json:"image_url,omitempty"`
	UsedIngredientCount   int      `json:"used_ingredient_count"`
	MissedIngredientCount int      `json:"missed_ingredient_count"`
	UsedIngredients       []string `json:"used_ingredients"`
	MissedIngredients     []string `json:"missed_ingredients"`
	IsSaved               bool     `json:"is_saved"`
}

func (r RecipeSummary) Identity() querycache.Identity {
	return querycache.Identity{ID: r.ID, ExternalID: r.ExternalID}
}
func (RecipeSummary) Kind() Kind { return KindRecipe }

type RecipeDetail struct {
	ID              string           `json:"id"`
	ExternalID      string           `json:"external_id,omitempty"`
	Source          string           `json:"source"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Instructions    []map[string]any `json:"instructions"`
	IngredientsJSON []map[string]any `json:"ingredients_json"`
	PrepTimeMinutes *int             `json:"prep_time_minutes"`
	CookTimeMinutes *int             `json:"cook_time_minutes"`
	Servings        *int             `json:"servings"`
	Difficulty      string           `json:"difficulty,omitempty"`
	ImageURL        string           `json:"image_url,omitempty"`
	Nutrition       map[string]any   `json:"nutrition,omitempty"`
	SourceURL       string           `json:"source_url,omitempty"`
	IsSaved         bool             `json:"is_saved"`
	CreatedAt       string           `json:"created_at"`
	UpdatedAt       string           `json:"updated_at"`
}

func (r RecipeDetail) Identity() querycache.Identity {
	return querycache.Identity{ID: r.ID, ExternalID: r.ExternalID}
}
func (RecipeDetail) Kind() Kind { return KindRecipe }

// SavedRecipe wraps the recipe it saves. Its identity is the embedded
// recipe's, so projections on a recipe reach its saved entry too.
type SavedRecipe struct {
	ID        string       `json:"id"`
	Recipe    RecipeDetail `json:"recipe"`
	Notes     string       `json:"notes,omitempty"`
	CreatedAt string       `json:"created_at"`
}

func (s SavedRecipe) Identity() querycache.Identity { return s.Recipe.Identity() }
func (SavedRecipe) Kind() Kind                       { return KindSavedRecipe }

type SaveInput struct {
	Notes string `json:"notes,omitempty"`
}

type CookingLog struct {
	ID             string `json:"id"`
	RecipeID       string `json:"recipe_id"`
	RecipeTitle    string `json:"recipe_title"`
	RecipeImageURL string `json:"recipe_image_url,omitempty"`
	CookedAt       string `json:"cooked_at"`
	Rating         *int   `json:"rating"`
	Notes          string `json:"notes,omitempty"`
}

func (l CookingLog) Identity() querycache.Identity { return querycache.Identity{ID: l.ID} }
func (CookingLog) Kind() Kind                       { return KindCookingLog }

type CookingLogInput struct {
	Rating *int    `json:"rating,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

// SuggestPage is one page of pantry-based suggestions. TotalResults is nil
// when the upstream search cannot report a total.
type SuggestPage struct {
	UsingPantryIngredients bool            `json:"using_pantry_ingredients"`
	Items                  []RecipeSummary `json:"items"`
	TotalResults           *int            `json:"total_results"`
}

func (p SuggestPage) PageLen() int { return len(p.Items) }

func (p SuggestPage) KnownTotal() (int, bool) {
	if p.TotalResults == nil {
		return 0, false
	}
	return *p.TotalResults, true
}

// SearchPage is one page of recipe search results.
type SearchPage struct {
	Items        []RecipeSummary `json:"items"`
	TotalResults int             `json:"total_results"`
}

func (p SearchPage) PageLen() int            { return len(p.Items) }
func (p SearchPage) KnownTotal() (int, bool) { return p.TotalResults, true }

var (
	_ querycache.Paged = SuggestPage{}
	_ querycache.Paged = SearchPage{}
	_ Tracked          = RecipeSummary{}
	_ Tracked          = RecipeDetail{}
	_ Tracked          = SavedRecipe{}
	_ Tracked          = PantryItem{}
	_ Tracked          = User{}
	_ Tracked          = CookingLog{}
)
