package validation

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"skill-runner/internal/models"
)

// User-facing messages returned by the postal code lookup.
const (
	MsgPostalCodeRequired = "Código postal requerido"
	MsgPostalCodeDigits   = "El código postal debe tener 5 dígitos"
)

const (
	maxAddressLen  = 500
	maxFieldLen    = 200
	maxSearchLen   = 120
	maxPostalLen   = 20
	maxDocumentLen = 10 << 20
)

var postalCodeRegex = regexp.MustCompile(`^\d{5}$`)

// ValidatePostalCode checks a required 5 digit code.
func ValidatePostalCode(cp string) error {
	cp = strings.TrimSpace(cp)
	if cp == "" {
		return fmt.Errorf("%s", MsgPostalCodeRequired)
	}
	if !postalCodeRegex.MatchString(cp) {
		return fmt.Errorf("%s", MsgPostalCodeDigits)
	}
	return nil
}

func ValidateLatitude(lat float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	return nil
}

func ValidateLongitude(lng float64) error {
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude must be between -180 and 180")
	}
	return nil
}

// ValidateExtractedAddress checks an address submitted directly. The full
// address may be empty when the structured fields can compose one. A
// malformed postal code is not an input error: it fails the catalog lookup
// and surfaces as a CP_INVALID alert.
func ValidateExtractedAddress(a models.ExtractedAddress) error {
	if len(a.FullAddress) > maxAddressLen {
		return fmt.Errorf("full_address must be less than %d characters", maxAddressLen)
	}
	fields := map[string]string{
		"street":          a.Street,
		"street_number":   a.StreetNumber,
		"interior_number": a.InteriorNumber,
		"settlement":      a.Settlement,
		"municipality":    a.Municipality,
		"state":           a.State,
	}
	empty := strings.TrimSpace(a.FullAddress) == "" && strings.TrimSpace(a.PostalCode) == ""
	for name, v := range fields {
		if len(v) > maxFieldLen {
			return fmt.Errorf("%s must be less than %d characters", name, maxFieldLen)
		}
		if strings.TrimSpace(v) != "" {
			empty = false
		}
	}
	if len(a.PostalCode) > maxPostalLen {
		return fmt.Errorf("postal_code must be less than %d characters", maxPostalLen)
	}
	if empty {
		return fmt.Errorf("address is empty")
	}
	return nil
}

// ValidateGeocode checks a caller supplied geocode result.
func ValidateGeocode(g models.GeocodeResult) error {
	if !g.Success {
		return nil
	}
	if strings.TrimSpace(g.FormattedAddress) == "" {
		return fmt.Errorf("formatted_address is required when success is true")
	}
	if err := ValidateLatitude(g.Latitude); err != nil {
		return err
	}
	return ValidateLongitude(g.Longitude)
}

// DecodeDocument validates and decodes a base64 document payload. Data URL
// prefixes ("data:image/png;base64,") are accepted and supply the mime type
// when none is given.
func DecodeDocument(b64, mime string) ([]byte, string, error) {
	b64 = strings.TrimSpace(b64)
	if rest, ok := strings.CutPrefix(b64, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("malformed data URL")
		}
		if mime == "" {
			mime, _, _ = strings.Cut(header, ";")
		}
		b64 = payload
	}
	if b64 == "" {
		return nil, "", fmt.Errorf("document is empty")
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "", fmt.Errorf("document is not valid base64")
	}
	if len(data) > maxDocumentLen {
		return nil, "", fmt.Errorf("document must be smaller than %d MB", maxDocumentLen>>20)
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	if err := ValidateMimeType(mime); err != nil {
		return nil, "", err
	}
	return data, mime, nil
}

// ValidateMimeType accepts images and plain text. PDFs must be rasterized
// by the caller.
func ValidateMimeType(mime string) error {
	switch {
	case mime == "", strings.HasPrefix(mime, "image/"), strings.HasPrefix(mime, "text/"):
		return nil
	case mime == "application/pdf":
		return fmt.Errorf("PDF documents are not supported: send an image of each page")
	default:
		return fmt.Errorf("unsupported document type %q", mime)
	}
}

// ValidateSearchTerm bounds free-text catalog and listing searches.
func ValidateSearchTerm(name, s string) error {
	if len(s) > maxSearchLen {
		return fmt.Errorf("%s must be less than %d characters", name, maxSearchLen)
	}
	return nil
}

// ValidateDecisionState accepts the three decision states.
func ValidateDecisionState(s string) error {
	if s == "" || models.DecisionState(s).Valid() {
		return nil
	}
	return fmt.Errorf("state must be one of APPROVED, NEEDS_REVIEW, REJECTED")
}
