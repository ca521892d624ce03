// Package prospect defines the canonical record every adapter produces and
// its transform into a system-of-record write payload.
package prospect

import (
	"strings"

	"github.com/sells-group/prospect-cli/internal/config"
)

// StatusPending is the initial enrichment status; downstream collaborators
// advance it.
const StatusPending = "pending"

// Record is the normalized company/location record returned by any adapter.
// Zero-valued optional fields are omitted from the write payload, so
// existing system-of-record values are never overwritten with blanks.
type Record struct {
	// Required. A record with an empty name after trimming is invalid and
	// must be rejected before dedup.
	CompanyName string

	// Address. All optional.
	Street      string
	City        string
	StateCode   string // two-letter code, e.g. "NY"
	PostalCode  string
	CountryCode string // defaults to "US" via New

	// Contact.
	Phone   string
	Website string

	// Free-text narrative assembled by the adapter.
	Description string

	// Provenance.
	DataSource       string
	StreamKey        string
	EnrichmentStatus string

	// Sourcing-stream attributes. Pointers so an explicit false survives
	// into the payload while an unset attribute omits the key.
	AlreadyImporting    *bool
	ImportOriginCountry string
	CurrentSupplier     string

	// Property-stream attributes.
	PropertyType    string
	EstimatedSpaces *int

	// Metadata, never persisted.
	SourceRecordID string
	Rating         float64
	Raw            map[string]any
}

// New returns a Record with provenance and defaults filled in.
func New(companyName, dataSource, streamKey string) Record {
	return Record{
		CompanyName:      companyName,
		CountryCode:      "US",
		DataSource:       dataSource,
		StreamKey:        streamKey,
		EnrichmentStatus: StatusPending,
	}
}

// Valid reports whether the record satisfies the one hard invariant: a
// non-empty company name after trimming.
func (r Record) Valid() bool {
	return strings.TrimSpace(r.CompanyName) != ""
}

// DedupKey returns the in-run dedup key: the source record id when present,
// otherwise the lowercased company name.
func (r Record) DedupKey() string {
	if r.SourceRecordID != "" {
		return r.SourceRecordID
	}
	return strings.ToLower(strings.TrimSpace(r.CompanyName))
}

// Payload builds the flat write map for lead creation. Only fields with a
// present value are included; a boolean attribute holding false is a
// meaningful value and is kept. Resolved reference ids equal to zero are
// treated as unresolved and omitted.
func (r Record) Payload(stageID, stateID, countryID int) map[string]any {
	values := map[string]any{
		"name":                leadTitle(r.CompanyName, r.StreamKey),
		"partner_name":        r.CompanyName,
		"x_bd_stream":         r.StreamKey,
		"x_enrichment_status": r.EnrichmentStatus,
	}
	if stageID != 0 {
		values["stage_id"] = stageID
	}

	// Address.
	if r.Street != "" {
		values["street"] = r.Street
	}
	if r.City != "" {
		values["city"] = r.City
	}
	if stateID != 0 {
		values["state_id"] = stateID
	}
	if r.PostalCode != "" {
		values["zip"] = r.PostalCode
	}
	if countryID != 0 {
		values["country_id"] = countryID
	}

	// Contact.
	if r.Phone != "" {
		values["phone"] = r.Phone
	}
	if r.Website != "" {
		values["website"] = r.Website
	}

	if r.Description != "" {
		values["description"] = r.Description
	}

	// Custom attributes.
	if r.DataSource != "" {
		values["x_data_source"] = r.DataSource
	}
	if r.AlreadyImporting != nil {
		values["x_already_importing"] = *r.AlreadyImporting
	}
	if r.ImportOriginCountry != "" {
		values["x_import_source_country"] = r.ImportOriginCountry
	}
	if r.CurrentSupplier != "" {
		values["x_current_supplier"] = r.CurrentSupplier
	}
	if r.PropertyType != "" {
		values["x_property_type"] = r.PropertyType
	}
	if r.EstimatedSpaces != nil {
		values["x_estimated_spaces"] = *r.EstimatedSpaces
	}

	return values
}

// leadTitle formats the lead display name, e.g. "Acme Foods Inc — Stream C".
func leadTitle(companyName, streamKey string) string {
	return companyName + " — " + config.StreamLabel(streamKey)
}

// Bool returns a pointer to b, for setting optional boolean attributes.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to n, for setting optional integer attributes.
func Int(n int) *int { return &n }
