// Package db provides embedded database schema and seed files.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedMenu contains the default campus canteen menu as JSON.
//
//go:embed seed/menu.json
var SeedMenu []byte
