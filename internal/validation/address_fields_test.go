package validation

import (
	"encoding/base64"
	"strings"
	"testing"

	"skill-runner/internal/models"
)

func TestValidatePostalCode(t *testing.T) {
	tests := []struct {
		in      string
		wantErr string
	}{
		{"64000", ""},
		{" 01000 ", ""},
		{"", MsgPostalCodeRequired},
		{"6400", MsgPostalCodeDigits},
		{"64000a", MsgPostalCodeDigits},
		{"640001", MsgPostalCodeDigits},
	}
	for _, tt := range tests {
		err := ValidatePostalCode(tt.in)
		got := ""
		if err != nil {
			got = err.Error()
		}
		if got != tt.wantErr {
			t.Errorf("ValidatePostalCode(%q) = %q, want %q", tt.in, got, tt.wantErr)
		}
	}
}

func TestValidateExtractedAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    models.ExtractedAddress
		wantErr bool
	}{
		{name: "full address only", addr: models.ExtractedAddress{FullAddress: "Av. Juárez 10, Centro"}},
		{name: "structured only", addr: models.ExtractedAddress{Street: "Juárez", Settlement: "Centro"}},
		{name: "postal code only", addr: models.ExtractedAddress{PostalCode: "64000"}},
		{name: "empty", addr: models.ExtractedAddress{FullAddress: "  "}, wantErr: true},
		{name: "short postal code is left to the catalog", addr: models.ExtractedAddress{FullAddress: "x", PostalCode: "6400"}},
		{name: "non numeric postal code is left to the catalog", addr: models.ExtractedAddress{FullAddress: "x", PostalCode: "64O00"}},
		{name: "oversized postal code", addr: models.ExtractedAddress{FullAddress: "x", PostalCode: strings.Repeat("1", 21)}, wantErr: true},
		{name: "oversized field", addr: models.ExtractedAddress{FullAddress: "x", Street: strings.Repeat("a", 201)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateExtractedAddress(tt.addr); (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateGeocode(t *testing.T) {
	if err := ValidateGeocode(models.GeocodeResult{FormattedAddress: "No se encontró la dirección"}); err != nil {
		t.Errorf("failed geocode should pass: %v", err)
	}
	if err := ValidateGeocode(models.GeocodeResult{Success: true}); err == nil {
		t.Error("success without formatted address should fail")
	}
	if err := ValidateGeocode(models.GeocodeResult{Success: true, FormattedAddress: "x", Latitude: 95}); err == nil {
		t.Error("latitude out of range should fail")
	}
}

func TestDecodeDocument(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff}
	b64 := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name     string
		b64      string
		mime     string
		wantMime string
		wantErr  bool
	}{
		{name: "plain base64", b64: b64, mime: "image/JPEG", wantMime: "image/jpeg"},
		{name: "data URL supplies mime", b64: "data:image/png;base64," + b64, wantMime: "image/png"},
		{name: "pdf rejected", b64: b64, mime: "application/pdf", wantErr: true},
		{name: "not base64", b64: "@@@", mime: "image/png", wantErr: true},
		{name: "empty", b64: "", wantErr: true},
		{name: "malformed data URL", b64: "data:image/png;base64", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, mime, err := DecodeDocument(tt.b64, tt.mime)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if mime != tt.wantMime || string(data) != string(raw) {
				t.Errorf("got %q %v", mime, data)
			}
		})
	}
}

func TestValidateDecisionState(t *testing.T) {
	for _, s := range []string{"", "APPROVED", "NEEDS_REVIEW", "REJECTED"} {
		if err := ValidateDecisionState(s); err != nil {
			t.Errorf("%q: %v", s, err)
		}
	}
	if err := ValidateDecisionState("PENDING"); err == nil {
		t.Error("PENDING should be rejected")
	}
}
