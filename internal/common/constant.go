// Package common contains shared constants and sentinel errors used across
// TenderCRM components.
package common

// Header names of the PostgREST dialect spoken between the sync client and
// the backend.
const (
	APIKeyHeaderName        = "apikey"
	AuthorizationHeaderName = "Authorization"
	PreferHeaderName        = "Prefer"

	// PreferReturnRepresentation asks the backend to echo written rows.
	PreferReturnRepresentation = "return=representation"
)

// RESTPrefix is the path under which the table endpoints live.
const RESTPrefix = "/rest/v1"
