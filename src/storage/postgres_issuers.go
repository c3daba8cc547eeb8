package storage

import (
	"context"
	"fmt"
	"regexp"

	"credit-observer/src/models"
)

// Issuer references of the form schema.table.field load the tracked
// universe from an existing postgres table.
var issuerRefRegex = regexp.MustCompile(`^(\w+)\.(\w+)\.(\w+)$`)

// -----------------------------------------------------------------------------

// ExpandIssuerRefs replaces reference entries with one issuer per distinct
// value of the referenced column. Plain symbols pass through unchanged.
func (d *PostgresDB) ExpandIssuerRefs(ctx context.Context, issuers []models.MIssuerConfig) ([]models.MIssuerConfig, error) {
	var out []models.MIssuerConfig
	seen := make(map[string]bool)
	add := func(is models.MIssuerConfig) {
		if !seen[is.Symbol] {
			seen[is.Symbol] = true
			out = append(out, is)
		}
	}

	for _, is := range issuers {
		m := issuerRefRegex.FindStringSubmatch(is.Symbol)
		if len(m) != 4 {
			add(is)
			continue
		}
		symbols, err := d.GetSymbolsFromTable(ctx, m[1], m[2], m[3])
		if err != nil {
			return out, fmt.Errorf("failed to load issuers from %s: %w", is.Symbol, err)
		}
		for _, sym := range symbols {
			add(models.MIssuerConfig{Symbol: sym, Sector: is.Sector, Industry: is.Industry})
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetSymbolsFromTable(ctx context.Context, schema, table, field string) ([]string, error) {
	// identifiers are \w+ by construction and quoted
	query := fmt.Sprintf(`SELECT DISTINCT "%s" FROM "%s"."%s" ORDER BY 1`, field, schema, table)

	rows, err := d.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols, rows.Err()
}
