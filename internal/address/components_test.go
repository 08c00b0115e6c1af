package address

import (
	"reflect"
	"testing"

	"skill-runner/internal/models"
)

func TestExtractComponents(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected models.AddressComponents
	}{
		{
			name:  "document address",
			input: "Calle Madero #123, Colonia Centro, CP 64000, Monterrey, Nuevo Leon, Mexico",
			expected: models.AddressComponents{
				StreetNumber:     "123",
				StreetNameTokens: []string{"madero", "centro"},
				PostalCode:       "64000",
				City:             "monterrey",
				State:            "nuevo leon",
			},
		},
		{
			name:  "geocoded address with state abbreviation",
			input: "Madero 123, Centro, 64000 Monterrey, N.L., Mexico",
			expected: models.AddressComponents{
				StreetNumber:     "123",
				StreetNameTokens: []string{"madero", "centro"},
				PostalCode:       "64000",
				City:             "monterrey",
				State:            "nuevo leon",
			},
		},
		{
			name:  "positional split into street and settlement",
			input: "Av. Paseo de la Reforma 222, Col. Juarez Cuauhtemoc, CDMX 06600",
			expected: models.AddressComponents{
				StreetNumber:     "222",
				StreetNameTokens: []string{"paseo", "reforma"},
				SettlementTokens: []string{"juarez", "cuauhtemoc"},
				PostalCode:       "06600",
				State:            "ciudad de mexico",
			},
		},
		{
			name:  "number falls back to the postal code",
			input: "Colonia Centro 64000",
			expected: models.AddressComponents{
				StreetNumber:     "64000",
				StreetNameTokens: []string{"centro"},
				PostalCode:       "64000",
			},
		},
		{
			name:     "empty input",
			input:    "",
			expected: models.AddressComponents{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractComponents(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ExtractComponents(%q)\n got  %+v\n want %+v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestExtractComponentsStatePriority(t *testing.T) {
	// both states appear; list order decides
	c := ExtractComponents("Juarez, Nuevo Leon, antes Ciudad de Mexico")
	if c.State != "nuevo leon" {
		t.Errorf("expected nuevo leon, got %q", c.State)
	}
}
