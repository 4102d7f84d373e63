package domain

import (
	"strings"

	"github.com/tidwall/gjson"

	"jobharvest/internal/mapping"
)

// Company is stored once per natural ID, the first time a job references it.
type Company struct {
	ID               string `db:"id"`
	DescriptionDE    string `db:"description_de"`
	DescriptionFR    string `db:"description_fr"`
	DescriptionEN    string `db:"description_en"`
	Slug             string `db:"slug"`
	IsVisible        bool   `db:"is_visible"`
	DatapoolID       string `db:"datapool_id"`
	Name             string `db:"name"`
	LastModified     string `db:"last_modified"`
	Industry         string `db:"industry"`
	FoundingYear     string `db:"founding_year"`
	URL              string `db:"url"`
	Phone            string `db:"phone"`
	AddressID        *int64 `db:"address_id"`
	ContactAddressID *int64 `db:"contact_address_id"`

	RatingsTotal   int64   `db:"ratings_total"`
	RatingsAverage float64 `db:"ratings_average"`

	SocialFacebook  string `db:"social_facebook"`
	SocialTwitter   string `db:"social_twitter"`
	SocialLinkedin  string `db:"social_linkedin"`
	SocialYoutube   string `db:"social_youtube"`
	SocialInstagram string `db:"social_instagram"`
	SocialXing      string `db:"social_xing"`
	SocialViadeo    string `db:"social_viadeo"`

	// Owned addresses, written before the company row.
	Address        *Address `db:"address"`
	ContactAddress *Address `db:"contact_address"`
}

var companyRules = mapping.Rules{
	"portrait_descriptions_search": func(v gjson.Result) (mapping.Result, error) {
		if !v.IsObject() {
			return mapping.Drop(), nil
		}
		return mapping.Fields(map[string]any{
			"description_de": v.Get("de"),
			"description_fr": v.Get("fr"),
			"description_en": v.Get("en"),
		}), nil
	},
	"social_urls":     socialURLs,
	"addresses":       ownedAddress("address"),
	"contact_address": ownedAddress("contact_address"),
	"ratings": func(v gjson.Result) (mapping.Result, error) {
		if !v.IsObject() {
			return mapping.Drop(), nil
		}
		return mapping.Fields(map[string]any{
			"ratings_total":   v.Get("total"),
			"ratings_average": v.Get("average"),
		}), nil
	},

	// binary assets and nested listings have no column
	"child_ids":             drop,
	"portrait":              drop,
	"portrait_urls":         drop,
	"portrait_descriptions": drop,
	"images":                drop,
	"videos":                drop,
	"metadata":              drop,
	"badges":                drop,
	"benefits":              drop,
}

func (c *Company) Rules() mapping.Rules {
	return companyRules
}

func drop(gjson.Result) (mapping.Result, error) {
	return mapping.Drop(), nil
}

// socialURLs turns [{type, url}, ...] into social_<type> columns. Platforms
// without a column are ignored by the mapper.
func socialURLs(v gjson.Result) (mapping.Result, error) {
	items := v.Array()
	if len(items) == 0 {
		return mapping.Drop(), nil
	}
	fields := make(map[string]any, len(items))
	for _, item := range items {
		platform := strings.ToLower(strings.TrimSpace(item.Get("type").String()))
		if platform == "" {
			continue
		}
		fields["social_"+platform] = item.Get("url")
	}
	return mapping.Fields(fields), nil
}
