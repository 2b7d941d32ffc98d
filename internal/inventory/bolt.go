package inventory

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	usersBucket     = []byte("users")
	usernamesBucket = []byte("usernames")
	locationsBucket = []byte("locations")
	itemsBucket     = []byte("food_items")
)

// boltUser is the stored form of a User; User hides the hash from JSON
type boltUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

// BoltStore implements Store on a single bbolt file
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the database file at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{usersBucket, usernamesBucket, locationsBucket, itemsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// DB exposes the handle so sessions can share the same file
func (b *BoltStore) DB() *bbolt.DB {
	return b.db
}

func itob(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func putJSON(bucket *bbolt.Bucket, id int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling record %d: %w", id, err)
	}
	return bucket.Put(itob(id), data)
}

func (b *BoltStore) CreateUser(_ context.Context, username, passwordHash string) (*User, error) {
	var rec boltUser
	err := b.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(usernamesBucket)
		if names.Get([]byte(username)) != nil {
			return ErrUsernameTaken
		}
		users := tx.Bucket(usersBucket)
		seq, err := users.NextSequence()
		if err != nil {
			return err
		}
		rec = boltUser{ID: int64(seq), Username: username, PasswordHash: passwordHash}
		if err := names.Put([]byte(username), itob(rec.ID)); err != nil {
			return err
		}
		return putJSON(users, rec.ID, rec)
	})
	if errors.Is(err, ErrUsernameTaken) {
		return nil, err
	}
	if err != nil {
		return nil, persistenceErr("creating user", err)
	}
	return &User{ID: rec.ID, Username: rec.Username, PasswordHash: rec.PasswordHash}, nil
}

func (b *BoltStore) GetUser(_ context.Context, id int64) (*User, error) {
	var rec *boltUser
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(usersBucket).Get(itob(id))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, persistenceErr("getting user", err)
	}
	if rec == nil {
		return nil, notFound("user", id)
	}
	return &User{ID: rec.ID, Username: rec.Username, PasswordHash: rec.PasswordHash}, nil
}

func (b *BoltStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var id int64
	err := b.db.View(func(tx *bbolt.Tx) error {
		if raw := tx.Bucket(usernamesBucket).Get([]byte(username)); raw != nil {
			id = int64(binary.BigEndian.Uint64(raw))
		}
		return nil
	})
	if err != nil {
		return nil, persistenceErr("getting user", err)
	}
	if id == 0 {
		return nil, ErrNotFound
	}
	return b.GetUser(ctx, id)
}

func (b *BoltStore) ListLocations(_ context.Context, owner int64) ([]*Location, error) {
	locations := make([]*Location, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(locationsBucket).ForEach(func(k, v []byte) error {
			var l Location
			if err := json.Unmarshal(v, &l); err != nil {
				return fmt.Errorf("unmarshaling location: %w", err)
			}
			if l.UserID == owner {
				locations = append(locations, &l)
			}
			return nil
		})
	})
	if err != nil {
		return nil, persistenceErr("listing locations", err)
	}
	return locations, nil
}

func getLocation(tx *bbolt.Tx, owner, id int64) (*Location, error) {
	data := tx.Bucket(locationsBucket).Get(itob(id))
	if data == nil {
		return nil, notFound("location", id)
	}
	var l Location
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("unmarshaling location: %w", err)
	}
	if l.UserID != owner {
		return nil, notFound("location", id)
	}
	return &l, nil
}

func (b *BoltStore) GetLocation(_ context.Context, owner, id int64) (*Location, error) {
	var l *Location
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		l, err = getLocation(tx, owner, id)
		return err
	})
	if err != nil {
		return nil, wrapBolt("getting location", err)
	}
	return l, nil
}

func (b *BoltStore) CreateLocation(_ context.Context, owner int64, in NewLocation) (*Location, error) {
	var l *Location
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(locationsBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		l = &Location{ID: int64(seq), Name: in.Name, Type: in.Type, UserID: owner}
		return putJSON(bucket, l.ID, l)
	})
	if err != nil {
		return nil, persistenceErr("creating location", err)
	}
	return l, nil
}

func (b *BoltStore) UpdateLocation(_ context.Context, owner, id int64, patch LocationPatch) (*Location, error) {
	var l *Location
	err := b.db.Update(func(tx *bbolt.Tx) error {
		var err error
		if l, err = getLocation(tx, owner, id); err != nil {
			return err
		}
		patch.apply(l)
		return putJSON(tx.Bucket(locationsBucket), id, l)
	})
	if err != nil {
		return nil, wrapBolt("updating location", err)
	}
	return l, nil
}

func (b *BoltStore) DeleteLocation(_ context.Context, owner, id int64) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if _, err := getLocation(tx, owner, id); err != nil {
			return err
		}
		inUse := false
		err := tx.Bucket(itemsBucket).ForEach(func(k, v []byte) error {
			var f FoodItem
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("unmarshaling food item: %w", err)
			}
			if f.LocationID == id {
				inUse = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if inUse {
			return ErrLocationInUse
		}
		return tx.Bucket(locationsBucket).Delete(itob(id))
	})
	return wrapBolt("deleting location", err)
}

func (b *BoltStore) ListFoodItems(_ context.Context, owner int64) ([]*FoodItem, error) {
	items := make([]*FoodItem, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(itemsBucket).ForEach(func(k, v []byte) error {
			var f FoodItem
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("unmarshaling food item: %w", err)
			}
			if f.UserID == owner {
				items = append(items, &f)
			}
			return nil
		})
	})
	if err != nil {
		return nil, persistenceErr("listing food items", err)
	}
	return items, nil
}

func getFoodItem(tx *bbolt.Tx, owner, id int64) (*FoodItem, error) {
	data := tx.Bucket(itemsBucket).Get(itob(id))
	if data == nil {
		return nil, notFound("food item", id)
	}
	var f FoodItem
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshaling food item: %w", err)
	}
	if f.UserID != owner {
		return nil, notFound("food item", id)
	}
	return &f, nil
}

func (b *BoltStore) GetFoodItem(_ context.Context, owner, id int64) (*FoodItem, error) {
	var f *FoodItem
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		f, err = getFoodItem(tx, owner, id)
		return err
	})
	if err != nil {
		return nil, wrapBolt("getting food item", err)
	}
	return f, nil
}

func (b *BoltStore) CreateFoodItem(_ context.Context, owner int64, in NewFoodItem) (*FoodItem, error) {
	var f *FoodItem
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if _, err := getLocation(tx, owner, in.LocationID); err != nil {
			return err
		}
		bucket := tx.Bucket(itemsBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		f = newFoodItem(int64(seq), owner, in, time.Now())
		return putJSON(bucket, f.ID, f)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, missingLocation(in.LocationID)
	}
	if err != nil {
		return nil, persistenceErr("creating food item", err)
	}
	return f, nil
}

func (b *BoltStore) UpdateFoodItem(_ context.Context, owner, id int64, patch FoodItemPatch) (*FoodItem, error) {
	var f *FoodItem
	err := b.db.Update(func(tx *bbolt.Tx) error {
		var err error
		if f, err = getFoodItem(tx, owner, id); err != nil {
			return err
		}
		if patch.LocationID != nil {
			_, err := getLocation(tx, owner, *patch.LocationID)
			if errors.Is(err, ErrNotFound) {
				return missingLocation(*patch.LocationID)
			}
			if err != nil {
				return err
			}
		}
		patch.apply(f)
		return putJSON(tx.Bucket(itemsBucket), id, f)
	})
	if err != nil {
		return nil, wrapBolt("updating food item", err)
	}
	return f, nil
}

func (b *BoltStore) DeleteFoodItem(_ context.Context, owner, id int64) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if _, err := getFoodItem(tx, owner, id); err != nil {
			return err
		}
		return tx.Bucket(itemsBucket).Delete(itob(id))
	})
	return wrapBolt("deleting food item", err)
}

// Close closes the database file
func (b *BoltStore) Close() error {
	return b.db.Close()
}

// wrapBolt passes domain errors through and wraps everything else
func wrapBolt(op string, err error) error {
	var verr *ValidationError
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrLocationInUse) || errors.As(err, &verr) {
		return err
	}
	return persistenceErr(op, err)
}
