// Package migrator runs plain SQL migration files against a database and
// records which ones have been applied in a history table.
//
// A migration is a single .sql file. Everything after an optional "-- UP"
// line and before a "-- DOWN" line is the forward script; everything after
// "-- DOWN" undoes it:
//
//	-- UP
//	CREATE TABLE accounts (id INTEGER PRIMARY KEY);
//	-- DOWN
//	DROP TABLE accounts;
//
// Files run in ascending order of their base name, so names usually start with
// a sequence number or timestamp.
package migrator
