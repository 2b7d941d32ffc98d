package inventory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
)

var _ = Describe("PostgresStore", func() {
	var (
		ctx   context.Context
		db    *sql.DB
		mock  sqlmock.Sqlmock
		store *PostgresStore
	)

	itemColumns := []string{"id", "name", "quantity", "unit", "location_id", "expiry_date", "price", "purchased", "user_id"}
	purchased := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, mock, err = sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		store = NewPostgresStore(db)
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		db.Close()
	})

	Describe("CreateUser", func() {
		It("should return the new id", func() {
			mock.ExpectQuery(`INSERT INTO users`).
				WithArgs("alice", "hash").
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

			u, err := store.CreateUser(ctx, "alice", "hash")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ID).To(Equal(int64(7)))
		})

		It("should map a unique violation to ErrUsernameTaken", func() {
			mock.ExpectQuery(`INSERT INTO users`).
				WillReturnError(&pgconn.PgError{Code: "23505"})

			_, err := store.CreateUser(ctx, "alice", "hash")
			Expect(errors.Is(err, ErrUsernameTaken)).To(BeTrue())
		})
	})

	Describe("GetFoodItem", func() {
		It("should scan a nullable price and a date", func() {
			mock.ExpectQuery(`SELECT .* FROM food_items WHERE id = \$1 AND user_id = \$2`).
				WithArgs(int64(3), int64(1)).
				WillReturnRows(sqlmock.NewRows(itemColumns).
					AddRow(3, "Milk", 2, "l", 4, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 1050, purchased, 1))

			f, err := store.GetFoodItem(ctx, 1, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Unit).To(Equal(UnitLitre))
			Expect(*f.Price).To(Equal(1050))
			Expect(f.ExpiryDate.String()).To(Equal("2024-06-01"))
		})

		It("should leave price nil for NULL", func() {
			mock.ExpectQuery(`SELECT .* FROM food_items`).
				WillReturnRows(sqlmock.NewRows(itemColumns).
					AddRow(3, "Milk", 2, "l", 4, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), nil, purchased, 1))

			f, err := store.GetFoodItem(ctx, 1, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Price).To(BeNil())
		})

		It("should map no rows to ErrNotFound", func() {
			mock.ExpectQuery(`SELECT .* FROM food_items`).WillReturnError(sql.ErrNoRows)

			_, err := store.GetFoodItem(ctx, 1, 3)
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		It("should wrap other failures as PersistenceError", func() {
			mock.ExpectQuery(`SELECT .* FROM food_items`).WillReturnError(errors.New("connection reset"))

			_, err := store.GetFoodItem(ctx, 1, 3)
			var perr *PersistenceError
			Expect(errors.As(err, &perr)).To(BeTrue())
			Expect(perr.Op).To(Equal("getting food item"))
		})
	})

	Describe("UpdateFoodItem", func() {
		It("should pass nil for untouched columns", func() {
			qty := 5
			mock.ExpectQuery(`UPDATE food_items SET`).
				WithArgs(int64(3), int64(1), nil, sql.NullInt64{Int64: 5, Valid: true}, nil, nil, nil, sql.NullInt64{}).
				WillReturnRows(sqlmock.NewRows(itemColumns).
					AddRow(3, "Milk", 5, "l", 4, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 1050, purchased, 1))

			f, err := store.UpdateFoodItem(ctx, 1, 3, FoodItemPatch{Quantity: &qty})
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Quantity).To(Equal(5))
		})
	})

	Describe("CreateFoodItem", func() {
		It("should map a foreign key violation to a locationId validation error", func() {
			mock.ExpectQuery(`INSERT INTO food_items`).
				WillReturnError(&pgconn.PgError{Code: "23503"})

			_, err := store.CreateFoodItem(ctx, 1, NewFoodItem{
				Name: "Jam", Quantity: 1, Unit: UnitPieces, LocationID: 4,
				ExpiryDate: NewDate(2024, 6, 2), Purchased: purchased,
			})
			var verr *ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(verr.Fields).To(HaveKeyWithValue("locationId", "location 4 does not exist"))
		})
	})

	Describe("DeleteLocation", func() {
		It("should map a foreign key violation to ErrLocationInUse", func() {
			mock.ExpectExec(`DELETE FROM locations`).
				WithArgs(int64(4), int64(1)).
				WillReturnError(&pgconn.PgError{Code: "23503"})

			err := store.DeleteLocation(ctx, 1, 4)
			Expect(errors.Is(err, ErrLocationInUse)).To(BeTrue())
		})

		It("should report a missing row as not found", func() {
			mock.ExpectExec(`DELETE FROM locations`).
				WillReturnResult(sqlmock.NewResult(0, 0))

			err := store.DeleteLocation(ctx, 1, 4)
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		It("should succeed when one row is removed", func() {
			mock.ExpectExec(`DELETE FROM locations`).
				WillReturnResult(sqlmock.NewResult(0, 1))

			Expect(store.DeleteLocation(ctx, 1, 4)).To(Succeed())
		})
	})

	Describe("ListLocations", func() {
		It("should return an empty slice when there are none", func() {
			mock.ExpectQuery(`SELECT .* FROM locations WHERE user_id = \$1`).
				WithArgs(int64(1)).
				WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "user_id"}))

			list, err := store.ListLocations(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).NotTo(BeNil())
			Expect(list).To(BeEmpty())
		})
	})
})

var _ = Describe("RunMigrations", func() {
	var origUp func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error

	BeforeEach(func() {
		origUp = gooseUpContext
	})

	AfterEach(func() {
		gooseUpContext = origUp
	})

	It("should run goose against the embedded directory", func() {
		var gotDir string
		gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
			gotDir = dir
			return nil
		}

		db, _, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		Expect(RunMigrations(context.Background(), db)).To(Succeed())
		Expect(gotDir).To(Equal("."))
	})

	It("should return the goose error", func() {
		gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
			return errors.New("boom")
		}

		db, _, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		Expect(RunMigrations(context.Background(), db)).To(MatchError("boom"))
	})
})

var _ = Describe("OpenPostgres", func() {
	var origBackoff func() retry.Backoff

	BeforeEach(func() {
		origBackoff = connectBackoff
		connectBackoff = func() retry.Backoff {
			return retry.WithMaxRetries(connectAttempts-1, retry.NewConstant(time.Millisecond))
		}
	})

	AfterEach(func() {
		connectBackoff = origBackoff
	})

	It("should give up after the configured attempts", func() {
		_, err := OpenPostgres(context.Background(), "postgres://nobody@127.0.0.1:1/none?connect_timeout=1")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("after 5 attempts"))
	})
})
