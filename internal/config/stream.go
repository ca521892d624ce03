package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// MatchField is a dedup match field name from a stream's dedup.match_on list.
type MatchField string

const (
	// MatchCompanyName is always applied; listing it is allowed but redundant.
	MatchCompanyName MatchField = "company_name"
	// MatchCity narrows the system-of-record lookup to the candidate's city.
	MatchCity MatchField = "city"
	// MatchStreet requires an exact case-insensitive street match on top of
	// the name match. Used where distinct operators share a name and city.
	MatchStreet MatchField = "street"
)

// StreamConfig is one named discovery profile: which adapters run, where
// they look, and how duplicates are detected.
type StreamConfig struct {
	Key           string        `yaml:"-" mapstructure:"-"`
	TargetProfile TargetProfile `yaml:"target_profile" mapstructure:"target_profile"`
	DataSources   DataSources   `yaml:"data_sources" mapstructure:"data_sources"`
	Dedup         DedupConfig   `yaml:"dedup" mapstructure:"dedup"`
	Research      StreamLimits  `yaml:"research" mapstructure:"research"`
}

// TargetProfile describes the stream's target geography and exclusions.
type TargetProfile struct {
	Geography        Geography `yaml:"geography" mapstructure:"geography"`
	ExcludeOperators []string  `yaml:"exclude_operators" mapstructure:"exclude_operators"`
}

// Geography lists the cities and regions a stream targets.
type Geography struct {
	Cities          []string `yaml:"cities" mapstructure:"cities"`
	PriorityRegions []string `yaml:"priority_regions" mapstructure:"priority_regions"`
}

// DataSources holds the typed per-adapter sections of a stream config,
// keyed in YAML by adapter name.
type DataSources struct {
	GoogleMaps GoogleMapsSource `yaml:"google_maps" mapstructure:"google_maps"`
	TradeData  TradeDataSource  `yaml:"trade_data" mapstructure:"trade_data"`
}

// GoogleMapsSource configures the structured Places adapter for a stream.
type GoogleMapsSource struct {
	Enabled            bool     `yaml:"enabled" mapstructure:"enabled"`
	SearchQueries      []string `yaml:"search_queries" mapstructure:"search_queries"`
	FetchDetails       bool     `yaml:"fetch_details" mapstructure:"fetch_details"`
	MaxResultsPerQuery int      `yaml:"max_results_per_query" mapstructure:"max_results_per_query"`
}

// TradeDataSource configures the scraped trade-data adapter for a stream.
type TradeDataSource struct {
	Enabled            bool     `yaml:"enabled" mapstructure:"enabled"`
	SourceCodes        []string `yaml:"source_codes" mapstructure:"source_codes"`
	ExcludeOriginsFrom []string `yaml:"exclude_origins_from" mapstructure:"exclude_origins_from"`
}

// DedupConfig selects the match fields for duplicate detection.
type DedupConfig struct {
	MatchOn []string `yaml:"match_on" mapstructure:"match_on"`
}

// StreamLimits holds per-stream run limits.
type StreamLimits struct {
	MaxNew int `yaml:"max_new" mapstructure:"max_new"`
}

// MatchFields parses and validates dedup.match_on. An empty list defaults
// to name + city, matching the reference behavior.
func (s StreamConfig) MatchFields() ([]MatchField, error) {
	raw := s.Dedup.MatchOn
	if len(raw) == 0 {
		return []MatchField{MatchCompanyName, MatchCity}, nil
	}
	fields := make([]MatchField, 0, len(raw))
	for _, f := range raw {
		switch MatchField(f) {
		case MatchCompanyName, MatchCity, MatchStreet:
			fields = append(fields, MatchField(f))
		default:
			return nil, eris.Errorf("stream %s: unknown dedup match field %q (valid: company_name, city, street)", s.Key, f)
		}
	}
	return fields, nil
}

// Validate checks the stream config once, before the run starts, so the
// adapters never have to re-validate on access.
func (s StreamConfig) Validate() error {
	if _, err := s.MatchFields(); err != nil {
		return err
	}
	if s.DataSources.GoogleMaps.Enabled && len(s.DataSources.GoogleMaps.SearchQueries) == 0 {
		return eris.Errorf("stream %s: google_maps enabled with no search_queries", s.Key)
	}
	if s.DataSources.TradeData.Enabled && len(s.DataSources.TradeData.SourceCodes) == 0 {
		return eris.Errorf("stream %s: trade_data enabled with no source_codes", s.Key)
	}
	return nil
}

// LoadStream reads and validates the stream profile <dir>/<key>.yaml.
func LoadStream(dir, key string) (*StreamConfig, error) {
	path := filepath.Join(dir, key+".yaml")
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "config: stream %q", key)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("data_sources.google_maps.max_results_per_query", 20)

	if err := v.ReadInConfig(); err != nil {
		return nil, eris.Wrapf(err, "config: read stream %q", key)
	}

	var stream StreamConfig
	if err := v.Unmarshal(&stream); err != nil {
		return nil, eris.Wrapf(err, "config: unmarshal stream %q", key)
	}
	stream.Key = key

	if err := stream.Validate(); err != nil {
		return nil, err
	}
	return &stream, nil
}

// ListStreams returns the stream keys available in dir, sorted.
func ListStreams(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrap(err, "config: read streams dir")
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(keys)
	return keys, nil
}

// StreamLabel renders a stream key for display, e.g. "stream_c" → "Stream C".
func StreamLabel(key string) string {
	words := strings.Split(strings.ReplaceAll(key, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
