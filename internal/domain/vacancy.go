package domain

// RawListing represents a posting as shaped by its source adapter.
// Company and location are flattened to plain strings at the adapter
// boundary; the core never branches on producer shapes.
type RawListing struct {
	ExternalID        string   `json:"external_id"`
	Title             string   `json:"title"`
	Company           string   `json:"company"`
	Location          string   `json:"location"`
	Country           string   `json:"country"`
	SalaryMin         *float64 `json:"salary_min"`
	SalaryMax         *float64 `json:"salary_max"`
	SalaryIsPredicted bool     `json:"salary_is_predicted"`
	Description       string   `json:"description"`
	Created           string   `json:"created"` // source-reported date, as given
	URL               string   `json:"url"`
	Source            string   `json:"source"`
	SearchQuery       string   `json:"search_query"`
	SearchLevel       string   `json:"search_level"`
}

// VacancyRecord is the persistent form of a posting, owned exclusively
// by the vacancy store and keyed by fingerprint.
type VacancyRecord struct {
	Fingerprint       string   `json:"fingerprint"`
	ExternalID        string   `json:"external_id"`
	Title             string   `json:"title"`
	Company           string   `json:"company"`
	Location          string   `json:"location"`
	Country           string   `json:"country"`
	SalaryMin         *float64 `json:"salary_min"`
	SalaryMax         *float64 `json:"salary_max"`
	SalaryIsPredicted bool     `json:"salary_is_predicted"`
	Description       string   `json:"description"`
	Created           string   `json:"created"`
	URL               string   `json:"url"`
	SearchQuery       string   `json:"search_query"`
	SearchLevel       string   `json:"search_level"`
	FirstSeen         string   `json:"first_seen"` // YYYY-MM-DD ingestion dates
	LastSeen          string   `json:"last_seen"`
	Source            string   `json:"source"`
	TranslatedTitle   string   `json:"translated_title"`
	ExtractedSkills   string   `json:"extracted_skills"`
	IsActive          bool     `json:"is_active"`
}

// PendingVacancy is the slice of a record the enrichment crawler needs:
// thin records are identified by fingerprint and re-fetched by URL.
type PendingVacancy struct {
	Fingerprint string
	URL         string
	Source      string
	Title       string
}

// SalaryHistoryPoint is one month of average salary for a role in a country.
type SalaryHistoryPoint struct {
	Country   string  `json:"country"`
	Role      string  `json:"role"`
	Month     string  `json:"month"` // YYYY-MM
	AvgSalary float64 `json:"avg_salary"`
}

// JobSource identifies a listing source.
type JobSource string

const (
	SourceAdzuna         JobSource = "adzuna"
	SourceStepStone      JobSource = "stepstone"
	SourceXing           JobSource = "xing"
	SourceArbeitsagentur JobSource = "arbeitsagentur"
)

// IsAggregator reports whether a source returns broad, less-precise
// listings. Aggregator salary data has the lowest merge precedence.
func IsAggregator(source string) bool {
	return source == string(SourceAdzuna)
}
