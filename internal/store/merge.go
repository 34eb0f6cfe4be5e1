package store

import (
	"github.com/dachjobs/go-crawler/internal/domain"
)

// merge applies the re-sighting rules to an existing record and returns
// the reconciled row. The rules are commutative with respect to ordering
// of concurrent writes to a field: longer description wins, salary is
// null-coalescing with source precedence, last_seen only advances.
func merge(existing domain.VacancyRecord, incoming domain.RawListing, today string) domain.VacancyRecord {
	merged := existing

	// first_seen is set once and never overwritten; last_seen advances
	// on every re-sighting.
	merged.LastSeen = today

	if incoming.URL != "" {
		merged.URL = incoming.URL
	}

	// A shorter candidate never overwrites a longer stored description.
	if len(incoming.Description) > len(existing.Description) {
		merged.Description = incoming.Description
	}

	// Salary precedence, per bound: once a non-aggregator value is
	// recorded it cannot be downgraded by an aggregator re-sighting,
	// but an aggregator may still fill a bound that is missing.
	if incoming.SalaryMin != nil && salaryWins(existing.SalaryMin, existing.Source, incoming.Source) {
		merged.SalaryMin = incoming.SalaryMin
		merged.SalaryIsPredicted = incoming.SalaryIsPredicted
	}
	if incoming.SalaryMax != nil && salaryWins(existing.SalaryMax, existing.Source, incoming.Source) {
		merged.SalaryMax = incoming.SalaryMax
	}

	if !domain.IsAggregator(incoming.Source) || domain.IsAggregator(existing.Source) {
		merged.Source = incoming.Source
	}

	return merged
}

// salaryWins reports whether an incoming value may write one salary
// bound: always when that bound is still empty, otherwise only when the
// incoming source is direct or the stored value came from an aggregator.
func salaryWins(stored *float64, existingSource, incomingSource string) bool {
	if stored == nil {
		return true
	}
	return !domain.IsAggregator(incomingSource) || domain.IsAggregator(existingSource)
}

// newRecord builds the initial row for a first sighting.
func newRecord(fp string, in domain.RawListing, today string) domain.VacancyRecord {
	return domain.VacancyRecord{
		Fingerprint:       fp,
		ExternalID:        in.ExternalID,
		Title:             in.Title,
		Company:           in.Company,
		Location:          in.Location,
		Country:           in.Country,
		SalaryMin:         in.SalaryMin,
		SalaryMax:         in.SalaryMax,
		SalaryIsPredicted: in.SalaryIsPredicted,
		Description:       in.Description,
		Created:           in.Created,
		URL:               in.URL,
		SearchQuery:       in.SearchQuery,
		SearchLevel:       in.SearchLevel,
		FirstSeen:         today,
		LastSeen:          today,
		Source:            in.Source,
		IsActive:          true,
	}
}
