package inventory

import "context"

// Store defines the persistence operations for users, locations and food items.
// Every location and food item lookup is scoped to the owning user; rows that
// belong to someone else are reported as ErrNotFound.
type Store interface {
	// CreateUser inserts a new user, ErrUsernameTaken when the name exists
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by login name
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	ListLocations(ctx context.Context, owner int64) ([]*Location, error)
	GetLocation(ctx context.Context, owner, id int64) (*Location, error)
	CreateLocation(ctx context.Context, owner int64, in NewLocation) (*Location, error)
	UpdateLocation(ctx context.Context, owner, id int64, patch LocationPatch) (*Location, error)

	// DeleteLocation removes a location, ErrLocationInUse while food items reference it
	DeleteLocation(ctx context.Context, owner, id int64) error

	ListFoodItems(ctx context.Context, owner int64) ([]*FoodItem, error)
	GetFoodItem(ctx context.Context, owner, id int64) (*FoodItem, error)
	CreateFoodItem(ctx context.Context, owner int64, in NewFoodItem) (*FoodItem, error)
	UpdateFoodItem(ctx context.Context, owner, id int64, patch FoodItemPatch) (*FoodItem, error)
	DeleteFoodItem(ctx context.Context, owner, id int64) error

	// Close releases the underlying handle
	Close() error
}
