// Package cli provides the interactive TenderCRM command-line client.
//
// NewApp builds the client context: local store, remote client,
// connectivity observer, sync engine and data facade. App.Run starts
// background synchronization and a REPL over the facade:
//
//	crm (offline, 1 pending)> add tenders name="Bridge repair" amount=120000 currency=EUR
//	crm (offline, 1 pending)> list tenders
//	crm (online)> sync
//
// Writes made while offline are stored locally and replayed when the remote
// becomes reachable again.
package cli
