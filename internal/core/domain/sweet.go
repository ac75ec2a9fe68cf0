package domain

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	msgSweetName   = "Sweet name must be at least 2 characters"
	msgCategory    = "Category is required"
	msgPrice       = "Price must be a positive number"
	msgQuantity    = "Quantity must be a non-negative integer"
	msgQuantityMax = "Quantity must be at most 2147483647"
)

// MaxQuantity is the largest stock a sweet may hold, matching the INT
// column of the SQL store.
const MaxQuantity = math.MaxInt32

type Sweet struct {
	ID        string
	Name      string
	Category  string
	Price     float64
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SweetDraft carries the caller supplied fields of a create or update.
// A nil field was not supplied.
type SweetDraft struct {
	Name     *string
	Category *string
	Price    *float64
	Quantity *int
}

// Validate checks the supplied fields. With partial set, absent fields are
// accepted; otherwise name, category and price are required.
func (d SweetDraft) Validate(partial bool) error {
	v := &ValidationError{}

	switch {
	case d.Name != nil:
		if !validName(*d.Name) {
			v.Add("name", msgSweetName)
		}
	case !partial:
		v.Add("name", msgSweetName)
	}

	switch {
	case d.Category != nil:
		if strings.TrimSpace(*d.Category) == "" {
			v.Add("category", msgCategory)
		}
	case !partial:
		v.Add("category", msgCategory)
	}

	switch {
	case d.Price != nil:
		if !validPrice(*d.Price) {
			v.Add("price", msgPrice)
		}
	case !partial:
		v.Add("price", msgPrice)
	}

	if d.Quantity != nil {
		checkQuantity(v, *d.Quantity)
	}

	return v.Err()
}

// ApplyTo copies the supplied fields onto s, trimming the text fields.
func (d SweetDraft) ApplyTo(s *Sweet) {
	if d.Name != nil {
		s.Name = strings.TrimSpace(*d.Name)
	}
	if d.Category != nil {
		s.Category = strings.TrimSpace(*d.Category)
	}
	if d.Price != nil {
		s.Price = *d.Price
	}
	if d.Quantity != nil {
		s.Quantity = *d.Quantity
	}
}

// Validate checks a complete record.
func (s Sweet) Validate() error {
	v := &ValidationError{}
	if !validName(s.Name) {
		v.Add("name", msgSweetName)
	}
	if strings.TrimSpace(s.Category) == "" {
		v.Add("category", msgCategory)
	}
	if !validPrice(s.Price) {
		v.Add("price", msgPrice)
	}
	checkQuantity(v, s.Quantity)
	return v.Err()
}

func checkQuantity(v *ValidationError, q int) {
	switch {
	case q < 0:
		v.Add("quantity", msgQuantity)
	case q > MaxQuantity:
		v.Add("quantity", msgQuantityMax)
	}
}

func validName(name string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(name)) >= 2
}

func validPrice(price float64) bool {
	return !math.IsNaN(price) && !math.IsInf(price, 0) && price >= 0
}

// SweetFilter selects sweets for a search. Zero fields impose no constraint
// and all set fields must match.
type SweetFilter struct {
	Name     string
	Category string
	MinPrice *float64
	MaxPrice *float64
}

func (f SweetFilter) Matches(s Sweet) bool {
	if f.Name != "" && !containsFold(s.Name, f.Name) {
		return false
	}
	if f.Category != "" && !containsFold(s.Category, f.Category) {
		return false
	}
	if f.MinPrice != nil && s.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && s.Price > *f.MaxPrice {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
