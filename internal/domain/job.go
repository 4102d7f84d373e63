package domain

import (
	"github.com/tidwall/gjson"

	"jobharvest/internal/mapping"
)

// Job is one posting. JobID is the natural key assigned by the API; for some
// publishers it is an arbitrary-length hex hash rather than a number.
type Job struct {
	RowID int64 `db:"row_id" json:"row_id"`

	JobID                        string  `db:"job_id" json:"job_id"`
	DetailDE                     string  `db:"detail_de" json:"detail_de"`
	DetailFR                     string  `db:"detail_fr" json:"detail_fr"`
	DetailEN                     string  `db:"detail_en" json:"detail_en"`
	Title                        string  `db:"title" json:"title"`
	RawTemplate                  string  `db:"raw_template" json:"raw_template"`
	Slug                         string  `db:"slug" json:"slug"`
	CompanySlug                  string  `db:"company_slug" json:"company_slug"`
	ApplicationMethod            string  `db:"application_method" json:"application_method"`
	JobSourceType                string  `db:"job_source_type" json:"job_source_type"`
	LastOnlineDate               string  `db:"last_online_date" json:"last_online_date"`
	DatapoolID                   int64   `db:"datapool_id" json:"datapool_id"`
	CompanyName                  string  `db:"company_name" json:"company_name"`
	CompanyID                    string  `db:"company_id" json:"company_id"`
	IndustryID                   int64   `db:"industry_id" json:"industry_id"`
	PublicationDate              string  `db:"publication_date" json:"publication_date"`
	InitialPublicationDate       string  `db:"initial_publication_date" json:"initial_publication_date"`
	Place                        string  `db:"place" json:"place"`
	Street                       string  `db:"street" json:"street"`
	ExternalURL                  string  `db:"external_url" json:"external_url"`
	ApplicationURL               string  `db:"application_url" json:"application_url"`
	Zipcode                      string  `db:"zipcode" json:"zipcode"`
	SourcePlatformID             string  `db:"source_platform_id" json:"source_platform_id"`
	Synonym                      string  `db:"synonym" json:"synonym"`
	TemplateProfession           string  `db:"template_profession" json:"template_profession"`
	TemplateText                 string  `db:"template_text" json:"template_text"`
	TemplateLeadText             string  `db:"template_lead_text" json:"template_lead_text"`
	TemplateContactAddress       string  `db:"template_contact_address" json:"template_contact_address"`
	OfferID                      string  `db:"offer_id" json:"offer_id"`
	IsActive                     bool    `db:"is_active" json:"is_active"`
	IsResponsive                 bool    `db:"is_responsive" json:"is_responsive"`
	IsPaid                       bool    `db:"is_paid" json:"is_paid"`
	IsHighlighted                bool    `db:"is_highlighted" json:"is_highlighted"`
	CoordinatesLon               float64 `db:"coordinates_lon" json:"coordinates_lon"`
	CoordinatesLat               float64 `db:"coordinates_lat" json:"coordinates_lat"`
	SourceHostname               string  `db:"source_hostname" json:"source_hostname"`
	HeadhunterApplicationAllowed bool    `db:"headhunter_application_allowed" json:"headhunter_application_allowed"`

	ContactFirstName   string  `db:"contact_first_name" json:"contact_first_name"`
	ContactLastName    string  `db:"contact_last_name" json:"contact_last_name"`
	ContactGender      string  `db:"contact_gender" json:"contact_gender"`
	ContactCity        string  `db:"contact_city" json:"contact_city"`
	ContactStreet      string  `db:"contact_street" json:"contact_street"`
	ContactCountryCode string  `db:"contact_country_code" json:"contact_country_code"`
	ContactPostalCode  string  `db:"contact_postal_code" json:"contact_postal_code"`
	ContactLat         float64 `db:"contact_lat" json:"contact_lat"`
	ContactLon         float64 `db:"contact_lon" json:"contact_lon"`
}

var jobRules = mapping.Rules{
	"detail_de":      href,
	"detail_fr":      href,
	"detail_en":      href,
	"coordinates":    lonLat("coordinates_lon", "coordinates_lat"),
	"contact_person": contactPerson,
}

// Rules returns the transforms applied when mapping a job payload.
func (j *Job) Rules() mapping.Rules {
	return jobRules
}

func href(v gjson.Result) (mapping.Result, error) {
	link := v.Get("href")
	if !link.Exists() {
		return mapping.Drop(), nil
	}
	return mapping.Scalar(link), nil
}

func lonLat(lonField, latField string) mapping.Transform {
	return func(v gjson.Result) (mapping.Result, error) {
		if !v.IsObject() {
			return mapping.Drop(), nil
		}
		return mapping.Fields(map[string]any{
			lonField: v.Get("lon"),
			latField: v.Get("lat"),
		}), nil
	}
}

// contactPerson flattens the nested contact into the contact_* columns.
// An absent or empty contact sets nothing.
func contactPerson(v gjson.Result) (mapping.Result, error) {
	person, ok := mapping.First(v)
	if !ok {
		return mapping.Fields(nil), nil
	}

	fields := map[string]any{
		"contact_first_name": person.Get("firstName"),
		"contact_last_name":  person.Get("lastName"),
		"contact_gender":     person.Get("gender"),
	}
	if address, ok := mapping.First(person.Get("address")); ok {
		fields["contact_city"] = address.Get("city")
		fields["contact_street"] = address.Get("street")
		fields["contact_country_code"] = address.Get("countryCode")
		fields["contact_postal_code"] = address.Get("postalCode")
		fields["contact_lat"] = address.Get("latitude")
		fields["contact_lon"] = address.Get("longitude")
	}
	return mapping.Fields(fields), nil
}
