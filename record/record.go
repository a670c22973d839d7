// Package record defines the pantry API payloads held in the cache.
//
// Every entity the cache may hold denormalized copies of is a Tracked record:
// it reports its Kind and its querycache.Identity, so projections can locate
// it inside list, detail and wrapper payloads without probing fields.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/unkn0wn-root/querycache"
)

// Kind tags a tracked entity type.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindUser
	KindPantryItem
	KindRecipe
	KindSavedRecipe
	KindCookingLog
)

var kindNames = [...]string{"unknown", "user", "pantry_item", "recipe", "saved_recipe", "cooking_log"}

func (k Kind) String() string {
	if int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Tracked is a record with a stable identity.
type Tracked interface {
	querycache.Identified
	Kind() Kind
}

// Quantity is a decimal amount. The API renders decimals either as JSON
// numbers or as strings; both decode.
type Quantity float64

func (q *Quantity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("record: quantity %q: %w", b, err)
	}
	*q = Quantity(f)
	return nil
}

// Q returns a pointer to q, for patches and inputs.
func Q(q float64) *Quantity { v := Quantity(q); return &v }

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Paginated is the API's list envelope.
type Paginated[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
