package inventory

import (
	"context"
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func intPtr(v int) *int { return &v }

// storeBehaviour runs the same contract against every Store implementation
func storeBehaviour(newStore func() Store) {
	var (
		ctx   context.Context
		store Store
		alice *User
		bob   *User
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()

		var err error
		alice, err = store.CreateUser(ctx, "alice", "hash-a")
		Expect(err).NotTo(HaveOccurred())
		bob, err = store.CreateUser(ctx, "bob", "hash-b")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	Describe("users", func() {
		It("should assign increasing ids", func() {
			Expect(bob.ID).To(BeNumerically(">", alice.ID))
		})

		It("should reject a duplicate username", func() {
			_, err := store.CreateUser(ctx, "alice", "other")
			Expect(errors.Is(err, ErrUsernameTaken)).To(BeTrue())
		})

		It("should look users up by name with the hash", func() {
			u, err := store.GetUserByUsername(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ID).To(Equal(alice.ID))
			Expect(u.PasswordHash).To(Equal("hash-a"))
		})

		It("should report unknown users as not found", func() {
			_, err := store.GetUserByUsername(ctx, "carol")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			_, err = store.GetUser(ctx, 999)
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("locations", func() {
		var pantry *Location

		BeforeEach(func() {
			var err error
			pantry, err = store.CreateLocation(ctx, alice.ID, NewLocation{Name: "Pantry", Type: LocationHome})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should list only the owner's locations", func() {
			_, err := store.CreateLocation(ctx, bob.ID, NewLocation{Name: "Desk", Type: LocationOffice})
			Expect(err).NotTo(HaveOccurred())

			list, err := store.ListLocations(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
			Expect(list[0].Name).To(Equal("Pantry"))
			Expect(list[0].UserID).To(Equal(alice.ID))
		})

		It("should hide another user's location", func() {
			_, err := store.GetLocation(ctx, bob.ID, pantry.ID)
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())

			_, err = store.UpdateLocation(ctx, bob.ID, pantry.ID, LocationPatch{})
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())

			Expect(errors.Is(store.DeleteLocation(ctx, bob.ID, pantry.ID), ErrNotFound)).To(BeTrue())
		})

		It("should apply a partial update", func() {
			name := "Big pantry"
			updated, err := store.UpdateLocation(ctx, alice.ID, pantry.ID, LocationPatch{Name: &name})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Name).To(Equal("Big pantry"))
			Expect(updated.Type).To(Equal(LocationHome))
		})

		It("should refuse to delete a location holding food items", func() {
			_, err := store.CreateFoodItem(ctx, alice.ID, NewFoodItem{
				Name: "Milk", Quantity: 1, Unit: UnitLitre, LocationID: pantry.ID,
				ExpiryDate: NewDate(2024, 6, 1),
			})
			Expect(err).NotTo(HaveOccurred())

			err = store.DeleteLocation(ctx, alice.ID, pantry.ID)
			Expect(errors.Is(err, ErrLocationInUse)).To(BeTrue())
		})

		It("should delete an empty location", func() {
			Expect(store.DeleteLocation(ctx, alice.ID, pantry.ID)).To(Succeed())
			_, err := store.GetLocation(ctx, alice.ID, pantry.ID)
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("food items", func() {
		var (
			pantry *Location
			milk   *FoodItem
		)

		BeforeEach(func() {
			var err error
			pantry, err = store.CreateLocation(ctx, alice.ID, NewLocation{Name: "Pantry", Type: LocationHome})
			Expect(err).NotTo(HaveOccurred())

			milk, err = store.CreateFoodItem(ctx, alice.ID, NewFoodItem{
				Name: "Milk", Quantity: 2, Unit: UnitLitre, LocationID: pantry.ID,
				ExpiryDate: NewDate(2024, 6, 1), Price: intPtr(1050),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should round-trip the price in cents", func() {
			got, err := store.GetFoodItem(ctx, alice.ID, milk.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Price).NotTo(BeNil())
			Expect(*got.Price).To(Equal(1050))
			Expect(got.ExpiryDate.String()).To(Equal("2024-06-01"))
		})

		It("should stamp the purchase time", func() {
			Expect(milk.Purchased.IsZero()).To(BeFalse())
		})

		It("should assign increasing ids", func() {
			bread, err := store.CreateFoodItem(ctx, alice.ID, NewFoodItem{
				Name: "Bread", Quantity: 1, Unit: UnitPieces, LocationID: pantry.ID,
				ExpiryDate: NewDate(2024, 6, 2),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(bread.ID).To(BeNumerically(">", milk.ID))
			Expect(bread.Price).To(BeNil())
		})

		It("should keep fields that are not patched", func() {
			qty := 5
			updated, err := store.UpdateFoodItem(ctx, alice.ID, milk.ID, FoodItemPatch{Quantity: &qty})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Quantity).To(Equal(5))
			Expect(updated.Name).To(Equal("Milk"))
			Expect(*updated.Price).To(Equal(1050))
			Expect(updated.Purchased.Unix()).To(Equal(milk.Purchased.Unix()))
		})

		It("should isolate owners", func() {
			list, err := store.ListFoodItems(ctx, bob.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(BeEmpty())

			_, err = store.GetFoodItem(ctx, bob.ID, milk.ID)
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		It("should refuse a location the owner doesn't have", func() {
			bobs, err := store.CreateLocation(ctx, bob.ID, NewLocation{Name: "Bob's", Type: LocationHome})
			Expect(err).NotTo(HaveOccurred())

			_, err = store.CreateFoodItem(ctx, alice.ID, NewFoodItem{
				Name: "Eggs", Quantity: 6, Unit: UnitPieces, LocationID: bobs.ID,
				ExpiryDate: NewDate(2024, 6, 2),
			})
			var verr *ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(verr.Fields).To(HaveKey("locationId"))

			_, err = store.UpdateFoodItem(ctx, alice.ID, milk.ID, FoodItemPatch{LocationID: &bobs.ID})
			Expect(errors.As(err, &verr)).To(BeTrue())

			got, err := store.GetFoodItem(ctx, alice.ID, milk.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.LocationID).To(Equal(pantry.ID))
		})

		It("should not leave an item behind when its location was deleted first", func() {
			shelf, err := store.CreateLocation(ctx, alice.ID, NewLocation{Name: "Shelf", Type: LocationHome})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.DeleteLocation(ctx, alice.ID, shelf.ID)).To(Succeed())

			_, err = store.CreateFoodItem(ctx, alice.ID, NewFoodItem{
				Name: "Jam", Quantity: 1, Unit: UnitPieces, LocationID: shelf.ID,
				ExpiryDate: NewDate(2024, 6, 2),
			})
			var verr *ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())

			list, err := store.ListFoodItems(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
		})

		It("should report missing ids on update and delete", func() {
			_, err := store.UpdateFoodItem(ctx, alice.ID, 999, FoodItemPatch{})
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			Expect(errors.Is(store.DeleteFoodItem(ctx, alice.ID, 999), ErrNotFound)).To(BeTrue())
		})

		It("should delete", func() {
			Expect(store.DeleteFoodItem(ctx, alice.ID, milk.ID)).To(Succeed())
			list, err := store.ListFoodItems(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(BeEmpty())
		})
	})
}

var _ = Describe("MemoryStore", func() {
	storeBehaviour(func() Store { return NewMemoryStore() })

	It("should hand out copies", func() {
		ctx := context.Background()
		store := NewMemoryStore()
		loc, err := store.CreateLocation(ctx, 1, NewLocation{Name: "Fridge", Type: LocationHome})
		Expect(err).NotTo(HaveOccurred())

		loc.Name = "changed"
		again, err := store.GetLocation(ctx, 1, loc.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Name).To(Equal("Fridge"))
	})
})

var _ = Describe("BoltStore", func() {
	storeBehaviour(func() Store {
		store, err := NewBoltStore(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
		return store
	})

	It("should report a failed lookup as a persistence error", func() {
		store, err := NewBoltStore(filepath.Join(GinkgoT().TempDir(), "closed.db"))
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Close()).To(Succeed())

		_, err = store.GetUserByUsername(context.Background(), "alice")
		var perr *PersistenceError
		Expect(errors.As(err, &perr)).To(BeTrue())
		Expect(errors.Is(err, ErrNotFound)).To(BeFalse())
	})

	It("should keep data across reopen", func() {
		ctx := context.Background()
		path := filepath.Join(GinkgoT().TempDir(), "reopen.db")

		store, err := NewBoltStore(path)
		Expect(err).NotTo(HaveOccurred())
		loc, err := store.CreateLocation(ctx, 1, NewLocation{Name: "Fridge", Type: LocationHome})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Close()).To(Succeed())

		store, err = NewBoltStore(path)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		got, err := store.GetLocation(ctx, 1, loc.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Name).To(Equal("Fridge"))
	})
})
