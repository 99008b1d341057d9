// Package tablestore writes mapped records to their destination tables.
//
// Two backends are available: Amazon DynamoDB tables and PostgreSQL tables storing the record as JSONB.
// Both check that a table is reachable with Describe and append a record with Put.
package tablestore

import "errors"

// ErrTableNotFound is returned by Describe when the table does not exist.
var ErrTableNotFound = errors.New("table not found")
