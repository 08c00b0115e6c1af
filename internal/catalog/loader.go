package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"skill-runner/internal/models"
	errs "skill-runner/pkg/errors"
)

// Columns of the SEPOMEX download: d_codigo|d_asenta|d_tipo_asenta|D_mnpio|d_estado|d_ciudad|...
const (
	colPostalCode = iota
	colSettlement
	colSettlementType
	colMunicipality
	colState
	colCity
	minColumns
)

// headerLines are the legal notice and the column header.
const headerLines = 2

// LoadFile reads a SEPOMEX catalog file.
func LoadFile(path string) ([]models.PostalCatalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.NewConfig("catalog.LoadFile", "cannot open postal catalog", err)
	}
	defer f.Close()
	entries, err := Parse(f)
	if err != nil {
		return nil, errs.NewConfig("catalog.LoadFile", "cannot parse postal catalog", err)
	}
	return entries, nil
}

// Parse decodes a Latin-1, pipe separated catalog. The first two lines are
// skipped, as are blank lines and rows with fewer than six columns.
func Parse(r io.Reader) ([]models.PostalCatalogEntry, error) {
	sc := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(r))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var out []models.PostalCatalogEntry
	for n := 0; sc.Scan(); n++ {
		if n < headerLines {
			continue
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < minColumns {
			continue
		}
		out = append(out, models.PostalCatalogEntry{
			PostalCode:     strings.TrimSpace(parts[colPostalCode]),
			SettlementName: strings.TrimSpace(parts[colSettlement]),
			SettlementType: strings.TrimSpace(parts[colSettlementType]),
			Municipality:   strings.TrimSpace(parts[colMunicipality]),
			State:          strings.TrimSpace(parts[colState]),
			City:           strings.TrimSpace(parts[colCity]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return out, nil
}
