// Package dedup decides whether candidate prospects already exist in the
// system of record, using fuzzy name matching with configurable narrowing.
package dedup

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/prospect"
	"github.com/sells-group/prospect-cli/pkg/odoo"
)

// MatchThreshold is the similarity score (0-100) at or above which a pair
// of names is considered the same entity.
const MatchThreshold = 85

// SystemOfRecord is the slice of the odoo client the checker needs.
type SystemOfRecord interface {
	FindSimilar(ctx context.Context, name, city string) ([]odoo.Lead, error)
}

// Checker matches candidate records against the system of record.
type Checker struct {
	sor    SystemOfRecord
	fields []config.MatchField
}

// NewChecker creates a Checker using the stream's configured match fields.
func NewChecker(sor SystemOfRecord, fields []config.MatchField) *Checker {
	return &Checker{sor: sor, fields: fields}
}

func (c *Checker) hasField(f config.MatchField) bool {
	for _, mf := range c.fields {
		if mf == f {
			return true
		}
	}
	return false
}

// IsDuplicate reports whether a sufficiently similar lead already exists.
// Records with a blank company name are never looked up: they are invalid
// and reported as not-duplicate with a warning. A lookup error is returned
// to the caller; Partition downgrades it to a warning.
func (c *Checker) IsDuplicate(ctx context.Context, rec prospect.Record) (bool, error) {
	name := strings.TrimSpace(rec.CompanyName)
	if name == "" {
		zap.L().Warn("dedup: skipping record with no company name",
			zap.String("source", rec.DataSource),
		)
		return false, nil
	}

	// City narrows the coarse lookup only when configured for the stream.
	city := ""
	if c.hasField(config.MatchCity) {
		city = rec.City
	}

	candidates, err := c.sor.FindSimilar(ctx, name, city)
	if err != nil {
		return false, err
	}

	var matches []odoo.Lead
	for _, cand := range candidates {
		if TokenSimilarity(name, cand.PartnerName) >= MatchThreshold {
			matches = append(matches, cand)
		}
	}

	// Street refinement for domains where distinct entities share one name
	// and city, e.g. adjacent properties.
	if c.hasField(config.MatchStreet) && rec.Street != "" {
		street := strings.ToLower(strings.TrimSpace(rec.Street))
		var refined []odoo.Lead
		for _, m := range matches {
			if strings.ToLower(strings.TrimSpace(m.Street)) == street {
				refined = append(refined, m)
			}
		}
		matches = refined
	}

	if len(matches) > 0 {
		names := make([]string, 0, 3)
		for _, m := range matches {
			names = append(names, m.PartnerName)
			if len(names) == 3 {
				break
			}
		}
		zap.L().Info("dedup: duplicate found",
			zap.String("candidate", name),
			zap.String("city", rec.City),
			zap.Strings("existing", names),
		)
		return true, nil
	}

	return false, nil
}

// Partition splits records into (new, duplicate), preserving input order
// within each list. A per-record lookup failure is logged and the record is
// classified as new rather than aborting the batch.
func (c *Checker) Partition(ctx context.Context, records []prospect.Record) (newRecords, duplicates []prospect.Record) {
	for _, rec := range records {
		dup, err := c.IsDuplicate(ctx, rec)
		if err != nil {
			zap.L().Warn("dedup: lookup failed, treating record as new",
				zap.String("company", rec.CompanyName),
				zap.Error(err),
			)
		}
		if dup {
			duplicates = append(duplicates, rec)
		} else {
			newRecords = append(newRecords, rec)
		}
	}

	zap.L().Info("dedup: partition complete",
		zap.Int("new", len(newRecords)),
		zap.Int("duplicates", len(duplicates)),
	)
	return newRecords, duplicates
}
