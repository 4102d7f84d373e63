package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"jobharvest/internal/domain"
)

var addressColumns = []string{
	"street1", "street2", "city", "city_de", "city_en", "city_fr", "zip_code",
	"country_code", "tel_1", "tel_2", "fax", "firstname", "lastname", "email",
	"latitude", "longitude",
}

var insertAddressQuery = insertQuery("address", addressColumns) + " RETURNING row_id"

type AddressStore struct {
	db *sqlx.DB
}

func NewAddressStore(db *sqlx.DB) *AddressStore {
	return &AddressStore{db: db}
}

// Insert always creates a new row; addresses have no natural key.
func (s *AddressStore) Insert(ctx context.Context, address *domain.Address) (int64, error) {
	id, err := insertReturningID(ctx, GetExecutor(ctx, s.db), insertAddressQuery, address)
	if err != nil {
		return 0, fmt.Errorf("insert address: %w", err)
	}
	address.RowID = id
	return id, nil
}

func (s *AddressStore) Get(ctx context.Context, rowID int64) (*domain.Address, error) {
	exec := GetExecutor(ctx, s.db)
	var address domain.Address
	err := sqlx.GetContext(ctx, exec, &address, exec.Rebind("SELECT * FROM address WHERE row_id = ?"), rowID)
	if err != nil {
		return nil, err
	}
	return &address, nil
}
