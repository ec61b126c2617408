// Package records persists cached entity rows of the local store.
//
// Every synced table (tenders, suppliers, expenses) has the same wrapper
// layout: id, JSON data, updated_at, synced and deleted flags. A single
// Repository therefore serves all of them, with the table passed per call
// and validated against entities.Tables before it reaches any SQL.
//
// The SQLite implementation works over dbx.DBTX, so the same code runs on
// the *sql.DB or inside a transaction opened by dbx.WithTx.
package records
