package models

// PostalCatalogEntry is one settlement record of the official postal catalog.
// Many entries share a PostalCode.
type PostalCatalogEntry struct {
	PostalCode     string `json:"codigo_postal"`
	SettlementName string `json:"colonia"`
	SettlementType string `json:"tipo_asentamiento"`
	Municipality   string `json:"municipio"`
	State          string `json:"estado"`
	City           string `json:"ciudad,omitempty"`
}

// Location is the representative municipality/state/city of a postal code.
type Location struct {
	Municipality string `json:"municipio"`
	State        string `json:"estado"`
	City         string `json:"ciudad"`
}

// ExtractedAddress is the address read from a customer document. Only
// FullAddress is required.
type ExtractedAddress struct {
	FullAddress    string `json:"full_address"`
	Street         string `json:"street,omitempty"`
	StreetNumber   string `json:"street_number,omitempty"`
	InteriorNumber string `json:"interior_number,omitempty"`
	Settlement     string `json:"settlement,omitempty"`
	Municipality   string `json:"municipality,omitempty"`
	State          string `json:"state,omitempty"`
	PostalCode     string `json:"postal_code,omitempty"`
}

// CatalogQuery is the structured part of an address checked against the
// postal catalog.
type CatalogQuery struct {
	PostalCode   string `json:"postal_code,omitempty"`
	Settlement   string `json:"settlement,omitempty"`
	Municipality string `json:"municipality,omitempty"`
	State        string `json:"state,omitempty"`
}

// CatalogQuery returns the fields the catalog validator looks at.
func (a ExtractedAddress) CatalogQuery() CatalogQuery {
	return CatalogQuery{
		PostalCode:   a.PostalCode,
		Settlement:   a.Settlement,
		Municipality: a.Municipality,
		State:        a.State,
	}
}

// GeocodeResult is the geocoding collaborator's answer. On failure
// FormattedAddress carries a human readable reason and the coordinates are 0.
type GeocodeResult struct {
	FormattedAddress string  `json:"formatted_address"`
	Latitude         float64 `json:"lat"`
	Longitude        float64 `json:"lng"`
	Success          bool    `json:"success"`
}

// AddressComponents are the signals pulled out of one address string.
type AddressComponents struct {
	StreetNumber     string   `json:"street_number"`
	StreetNameTokens []string `json:"street_name_tokens"`
	SettlementTokens []string `json:"settlement_tokens"`
	PostalCode       string   `json:"postal_code"`
	City             string   `json:"city"`
	State            string   `json:"state"`
}

// SimilarityResult compares a document address with a geocoded one.
type SimilarityResult struct {
	Percentage  int      `json:"percentage"`
	Differences []string `json:"differences"`
}

// CatalogValidationResult is the outcome of checking a CatalogQuery against
// the postal catalog.
type CatalogValidationResult struct {
	CPExists       bool                `json:"cp_exists"`
	ColoniaMatch   bool                `json:"colonia_match"`
	MunicipioMatch bool                `json:"municipio_match"`
	EstadoMatch    bool                `json:"estado_match"`
	IsValid        bool                `json:"is_valid"`
	Suggestions    []string            `json:"suggestions"`
	OfficialData   *PostalCatalogEntry `json:"official_data,omitempty"`
}
