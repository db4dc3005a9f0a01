// Package archive resolves, probes and downloads the monthly trip archive.
package archive

import (
	"strings"

	"github.com/tigerroll/citibike/internal/domain/period"
)

// DefaultBaseURL is the public bucket the trip archives are published to.
const DefaultBaseURL = "https://s3.amazonaws.com/tripdata/"

// Locator generates the candidate archive locations of a period.
type Locator struct {
	BaseURL string
}

// NewLocator returns a Locator rooted at baseURL, or DefaultBaseURL when empty.
func NewLocator(baseURL string) Locator {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return Locator{BaseURL: baseURL}
}

// LocationsFor returns the two naming conventions used by the publisher, in
// the order they are tried.
func (l Locator) LocationsFor(p period.Period) []string {
	token := p.Token()
	return []string{
		l.BaseURL + token + "-citibike-tripdata.csv.zip",
		l.BaseURL + token + "-citibike-tripdata.zip",
	}
}
