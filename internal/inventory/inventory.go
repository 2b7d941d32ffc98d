package inventory

import "time"

// Unit is the measurement unit of a FoodItem quantity
type Unit string

const (
	UnitPieces     Unit = "pieces"
	UnitGram       Unit = "g"
	UnitKilogram   Unit = "kg"
	UnitMillilitre Unit = "ml"
	UnitLitre      Unit = "l"
)

// LocationType classifies a storage Location
type LocationType string

const (
	LocationHome    LocationType = "home"
	LocationOffice  LocationType = "office"
	LocationStorage LocationType = "storage"
	LocationOther   LocationType = "other"
)

// User owns Locations and FoodItems
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// Location is a named place food items are kept in
type Location struct {
	ID     int64        `json:"id"`
	Name   string       `json:"name"`
	Type   LocationType `json:"type"`
	UserID int64        `json:"userId"`
}

// FoodItem is a persisted inventory entry
type FoodItem struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Quantity   int       `json:"quantity"`
	Unit       Unit      `json:"unit"`
	LocationID int64     `json:"locationId"`
	ExpiryDate Date      `json:"expiryDate"`
	Price      *int      `json:"price"` // Price per unit in cents
	Purchased  time.Time `json:"purchased"`
	UserID     int64     `json:"userId"`
}

// Value returns price times quantity in cents, 0 when the price is unknown
func (f *FoodItem) Value() int {
	if f.Price == nil {
		return 0
	}
	return *f.Price * f.Quantity
}

// NewLocation is the insert payload for a Location
type NewLocation struct {
	Name string       `json:"name" validate:"required,max=100"`
	Type LocationType `json:"type" validate:"required,oneof=home office storage other"`
}

// LocationPatch is a partial Location update; nil fields are left untouched
type LocationPatch struct {
	Name *string       `json:"name,omitempty" validate:"omitnil,min=1,max=100"`
	Type *LocationType `json:"type,omitempty" validate:"omitnil,oneof=home office storage other"`
}

func (p LocationPatch) apply(l *Location) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Type != nil {
		l.Type = *p.Type
	}
}

// NewFoodItem is the insert payload for a FoodItem.
// Purchased is stamped with the current time when zero.
type NewFoodItem struct {
	Name       string    `json:"name" validate:"required,max=200"`
	Quantity   int       `json:"quantity" validate:"min=0"`
	Unit       Unit      `json:"unit" validate:"required,oneof=pieces g kg ml l"`
	LocationID int64     `json:"locationId" validate:"required,gt=0"`
	ExpiryDate Date      `json:"expiryDate" validate:"required"`
	Price      *int      `json:"price,omitempty" validate:"omitnil,min=0"`
	Purchased  time.Time `json:"-"`
}

// FoodItemPatch is a partial FoodItem update; nil fields are left untouched
type FoodItemPatch struct {
	Name       *string `json:"name,omitempty" validate:"omitnil,min=1,max=200"`
	Quantity   *int    `json:"quantity,omitempty" validate:"omitnil,min=0"`
	Unit       *Unit   `json:"unit,omitempty" validate:"omitnil,oneof=pieces g kg ml l"`
	LocationID *int64  `json:"locationId,omitempty" validate:"omitnil,gt=0"`
	ExpiryDate *Date   `json:"expiryDate,omitempty"`
	Price      *int    `json:"price,omitempty" validate:"omitnil,min=0"`
}

func (p FoodItemPatch) apply(f *FoodItem) {
	if p.Name != nil {
		f.Name = *p.Name
	}
	if p.Quantity != nil {
		f.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		f.Unit = *p.Unit
	}
	if p.LocationID != nil {
		f.LocationID = *p.LocationID
	}
	if p.ExpiryDate != nil {
		f.ExpiryDate = *p.ExpiryDate
	}
	if p.Price != nil {
		price := *p.Price
		f.Price = &price
	}
}

func newFoodItem(id, ownerID int64, in NewFoodItem, now time.Time) *FoodItem {
	purchased := in.Purchased
	if purchased.IsZero() {
		purchased = now
	}
	return &FoodItem{
		ID:         id,
		Name:       in.Name,
		Quantity:   in.Quantity,
		Unit:       in.Unit,
		LocationID: in.LocationID,
		ExpiryDate: in.ExpiryDate,
		Price:      copyInt(in.Price),
		Purchased:  purchased,
		UserID:     ownerID,
	}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFoodItem(f *FoodItem) *FoodItem {
	c := *f
	c.Price = copyInt(f.Price)
	return &c
}
