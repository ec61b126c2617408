// Package client is the remote boundary of the sync layer.
//
// Client is the transport-agnostic contract the sync engine and the data
// facade talk to: table-level Select/Insert/Update/Delete plus Ping. Rows
// cross the boundary as raw JSON objects; decoding into entity types is the
// caller's business.
//
// RESTClient implements Client over a PostgREST-style HTTP API:
//
//	GET    /rest/v1/<table>?select=*&order=created_at.desc
//	POST   /rest/v1/<table>                 (Prefer: return=representation)
//	PATCH  /rest/v1/<table>?id=eq.<id>      (Prefer: return=representation)
//	DELETE /rest/v1/<table>?id=eq.<id>      (Prefer: return=representation)
//
// # Error Handling
//
// Failures are classified into sentinels that callers match with errors.Is:
// ErrUnavailable (transport failure, 5xx, 408, 429), ErrUnauthorized (401,
// 403), ErrNotFound (404 or no row matched) and ErrRejected (any other 4xx).
// Responses with an error status are returned as *APIError, which unwraps
// to the matching sentinel. Configuration problems detected by
// TryCreateClient are returned as *ConfigError.
package client
