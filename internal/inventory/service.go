package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service validates payloads and checks location ownership before
// delegating to the Store.
type Service struct {
	store      Store
	validate   *validator.Validate
	timeSource TimeSource
}

// NewService creates a new Service using the wall clock
func NewService(store Store) *Service {
	return NewServiceWithDeps(store, defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with a custom time source for testing
func NewServiceWithDeps(store Store, timeSrc TimeSource) *Service {
	return &Service{
		store:      store,
		validate:   NewValidator(),
		timeSource: timeSrc,
	}
}

// Store returns the underlying store
func (s *Service) Store() Store {
	return s.store
}

func (s *Service) ListLocations(ctx context.Context, owner int64) ([]*Location, error) {
	return s.store.ListLocations(ctx, owner)
}

func (s *Service) GetLocation(ctx context.Context, owner, id int64) (*Location, error) {
	return s.store.GetLocation(ctx, owner, id)
}

func (s *Service) CreateLocation(ctx context.Context, owner int64, in NewLocation) (*Location, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, ValidationErrorOf(err)
	}
	return s.store.CreateLocation(ctx, owner, in)
}

func (s *Service) UpdateLocation(ctx context.Context, owner, id int64, patch LocationPatch) (*Location, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	if err := s.validate.Struct(patch); err != nil {
		return nil, ValidationErrorOf(err)
	}
	return s.store.UpdateLocation(ctx, owner, id, patch)
}

func (s *Service) DeleteLocation(ctx context.Context, owner, id int64) error {
	return s.store.DeleteLocation(ctx, owner, id)
}

func (s *Service) ListFoodItems(ctx context.Context, owner int64) ([]*FoodItem, error) {
	return s.store.ListFoodItems(ctx, owner)
}

func (s *Service) GetFoodItem(ctx context.Context, owner, id int64) (*FoodItem, error) {
	return s.store.GetFoodItem(ctx, owner, id)
}

// CreateFoodItem validates the payload, requires the location to belong to
// owner and stamps the purchase time when it is not supplied.
func (s *Service) CreateFoodItem(ctx context.Context, owner int64, in NewFoodItem) (*FoodItem, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, ValidationErrorOf(err)
	}
	if err := s.checkLocation(ctx, owner, in.LocationID); err != nil {
		return nil, err
	}
	if in.Purchased.IsZero() {
		in.Purchased = s.timeSource.Now()
	}
	return s.store.CreateFoodItem(ctx, owner, in)
}

func (s *Service) UpdateFoodItem(ctx context.Context, owner, id int64, patch FoodItemPatch) (*FoodItem, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	if err := s.validate.Struct(patch); err != nil {
		return nil, ValidationErrorOf(err)
	}
	if patch.ExpiryDate != nil && patch.ExpiryDate.IsZero() {
		return nil, NewValidationError("expiryDate", "must not be null")
	}
	if patch.LocationID != nil {
		if err := s.checkLocation(ctx, owner, *patch.LocationID); err != nil {
			return nil, err
		}
	}
	return s.store.UpdateFoodItem(ctx, owner, id, patch)
}

func (s *Service) DeleteFoodItem(ctx context.Context, owner, id int64) error {
	return s.store.DeleteFoodItem(ctx, owner, id)
}

func (s *Service) checkLocation(ctx context.Context, owner, locationID int64) error {
	_, err := s.store.GetLocation(ctx, owner, locationID)
	if errors.Is(err, ErrNotFound) {
		return missingLocation(locationID)
	}
	return err
}
