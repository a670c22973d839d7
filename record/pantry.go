package record

import "github.com/unkn0wn-root/querycache"

// Pantry item statuses.
const (
	StatusAvailable = "available"
	StatusExpired   = "expired"
	StatusUsedUp    = "used_up"
)

type Ingredient struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	CategoryName string `json:"category_name,omitempty"`
	CategoryIcon string `json:"category_icon,omitempty"`
}

// PantryItem dates are ISO dates (YYYY-MM-DD); timestamps are RFC 3339 as
// sent by the server.
type PantryItem struct {
	ID         string     `json:"id"`
	Ingredient Ingredient `json:"ingredient"`
	Quantity   *Quantity  `json:"quantity"`
	Unit       string     `json:"unit,omitempty"`
	AddedDate  string     `json:"added_date"`
	ExpiryDate string     `json:"expiry_date,omitempty"`
	Source     string     `json:"source"`
	Status     string     `json:"status"`
	CreatedAt  string     `json:"created_at"`
	UpdatedAt  string     `json:"updated_at"`
}

func (it PantryItem) Identity() querycache.Identity { return querycache.Identity{ID: it.ID} }
func (PantryItem) Kind() Kind                        { return KindPantryItem }

// PantryItemPatch is a field-patch of a pantry item. Nil fields are untouched.
type PantryItemPatch struct {
	Quantity   *Quantity `json:"quantity,omitempty"`
	Unit       *string   `json:"unit,omitempty"`
	ExpiryDate *string   `json:"expiry_date,omitempty"`
	Status     *string   `json:"status,omitempty"`
}

func (p PantryItemPatch) Empty() bool {
	return p.Quantity == nil && p.Unit == nil && p.ExpiryDate == nil && p.Status == nil
}

// Apply returns it with only the set fields replaced.
func (p PantryItemPatch) Apply(it PantryItem) PantryItem {
	if p.Quantity != nil {
		q := *p.Quantity
		it.Quantity = &q
	}
	if p.Unit != nil {
		it.Unit = *p.Unit
	}
	if p.ExpiryDate != nil {
		it.ExpiryDate = *p.ExpiryDate
	}
	if p.Status != nil {
		it.Status = *p.Status
	}
	return it
}

type PantryItemInput struct {
	IngredientName string    `json:"ingredient_name"`
	Quantity       *Quantity `json:"quantity,omitempty"`
	Unit           *string   `json:"unit,omitempty"`
	ExpiryDate     *string   `json:"expiry_date,omitempty"`
	CategoryHint   *string   `json:"category_hint,omitempty"`
}

type PantryItemCreated struct {
	Item    PantryItem `json:"item"`
	Created bool       `json:"created"`
}

// UseInput consumes Quantity of an item; nil uses all of it.
type UseInput struct {
	Quantity *Quantity `json:"quantity,omitempty"`
}

type BulkDeleteInput struct {
	IDs []string `json:"ids"`
}

type BulkDeleteOutput struct {
	DeletedCount int `json:"deleted_count"`
}

type CategorySummary struct {
	CategoryID        *int   `json:"category_id"`
	CategoryName      string `json:"category_name"`
	CategoryIcon      string `json:"category_icon,omitempty"`
	AvailableCount    int    `json:"available_count"`
	ExpiredCount      int    `json:"expired_count"`
	UsedUpCount       int    `json:"used_up_count"`
	ExpiringSoonCount int    `json:"expiring_soon_count"`
	TotalCount        int    `json:"total_count"`
}

type PantrySummary struct {
	TotalItems        int               `json:"total_items"`
	TotalAvailable    int               `json:"total_available"`
	TotalExpired      int               `json:"total_expired"`
	TotalExpiringSoon int               `json:"total_expiring_soon"`
	Categories        []CategorySummary `json:"categories"`
}
