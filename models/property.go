package models

import "time"

// Frequency is the billing period of a price.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencyAnnually Frequency = "annually"
)

// Provenance records which standardization path produced a record.
type Provenance string

const (
	ProvenanceStructured Provenance = "structured"
	ProvenanceText       Provenance = "text"
)

// Address is the location block of a listing.
type Address struct {
	Display   string   `json:"display,omitempty"`
	Street    string   `json:"street,omitempty"`
	Suburb    string   `json:"suburb,omitempty"`
	State     string   `json:"state,omitempty"`
	Postcode  string   `json:"postcode,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Geohash   string   `json:"geohash,omitempty"`
}

// Price is the price block of a listing.
type Price struct {
	Display   string    `json:"display,omitempty"`
	Amount    *float64  `json:"amount,omitempty"`
	Frequency Frequency `json:"frequency,omitempty"`
	Currency  string    `json:"currency,omitempty"`
}

// Details holds the structural attributes of a listing.
type Details struct {
	PropertyType PropertyType `json:"property_type,omitempty"`
	Bedrooms     *int         `json:"bedrooms,omitempty"`
	Bathrooms    *int         `json:"bathrooms,omitempty"`
	Parking      *int         `json:"parking,omitempty"`
	LandSize     *float64     `json:"land_size,omitempty"`
	BuildingSize *float64     `json:"building_size,omitempty"`
}

// Contact identifies the listing agent.
type Contact struct {
	AgentName  string `json:"agent_name,omitempty"`
	AgentPhone string `json:"agent_phone,omitempty"`
	AgencyName string `json:"agency_name,omitempty"`
}

// InspectionSlot is one open-for-inspection window, as published upstream.
type InspectionSlot struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// Availability holds move-in and inspection information.
type Availability struct {
	AvailableFrom string           `json:"available_from,omitempty"`
	Inspections   []InspectionSlot `json:"inspections,omitempty"`
}

// Metadata tracks where and when a record was captured.
type Metadata struct {
	ListedAt    *time.Time `json:"listed_at,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
	SourceURL   string     `json:"source_url,omitempty"`
	ScrapedAt   time.Time  `json:"scraped_at"`
	Provenance  Provenance `json:"provenance"`
	Confidence  float64    `json:"confidence"`
}

// Property is the canonical listing record.
type Property struct {
	SourceListingID string       `json:"source_listing_id"`
	SourceName      string       `json:"source_name"`
	ListingType     ListingType  `json:"listing_type,omitempty"`
	Address         Address      `json:"address"`
	Price           Price        `json:"price"`
	Details         Details      `json:"details"`
	Images          []string     `json:"images,omitempty"`
	Description     string       `json:"description,omitempty"`
	Features        []string     `json:"features,omitempty"`
	Contact         Contact      `json:"contact"`
	Availability    Availability `json:"availability"`
	Metadata        Metadata     `json:"metadata"`
}

// NaturalKey is the stable identity of a listing across scrapes.
type NaturalKey struct {
	SourceListingID string
	SourceName      string
}

func (k NaturalKey) String() string {
	return k.SourceName + "/" + k.SourceListingID
}

// Key returns the natural key of p.
func (p Property) Key() NaturalKey {
	return NaturalKey{SourceListingID: p.SourceListingID, SourceName: p.SourceName}
}

// HasKey reports whether both parts of the natural key are present.
func (p Property) HasKey() bool {
	return p.SourceListingID != "" && p.SourceName != ""
}
