package domain

import (
	"github.com/tidwall/gjson"

	"jobharvest/internal/mapping"
)

// Address belongs to the company that references it and has no identity
// beyond its surrogate RowID.
type Address struct {
	RowID int64 `db:"row_id"`

	Street1     string  `db:"street1"`
	Street2     string  `db:"street2"`
	City        string  `db:"city"`
	CityDE      string  `db:"city_de"`
	CityEN      string  `db:"city_en"`
	CityFR      string  `db:"city_fr"`
	ZipCode     string  `db:"zip_code"`
	CountryCode string  `db:"country_code"`
	Tel1        string  `db:"tel_1"`
	Tel2        string  `db:"tel_2"`
	Fax         string  `db:"fax"`
	Firstname   string  `db:"firstname"`
	Lastname    string  `db:"lastname"`
	Email       string  `db:"email"`
	Latitude    float64 `db:"latitude"`
	Longitude   float64 `db:"longitude"`
}

var addressRules = mapping.Rules{
	"city_translations": func(v gjson.Result) (mapping.Result, error) {
		if !v.IsObject() {
			return mapping.Drop(), nil
		}
		return mapping.Fields(map[string]any{
			"city_de": v.Get("de"),
			"city_en": v.Get("en"),
			"city_fr": v.Get("fr"),
		}), nil
	},
	"coordinates": lonLat("longitude", "latitude"),
}

func (a *Address) Rules() mapping.Rules {
	return addressRules
}

// ownedAddress maps the first address of v into column, or drops it when v
// holds none.
func ownedAddress(column string) mapping.Transform {
	return func(v gjson.Result) (mapping.Result, error) {
		raw, ok := mapping.First(v)
		if !ok {
			return mapping.Drop(), nil
		}
		address, err := mapping.Materialize[Address](raw)
		if err != nil {
			return mapping.Drop(), err
		}
		return mapping.Fields(map[string]any{column: address}), nil
	}
}
