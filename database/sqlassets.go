package sqlassets

import "embed"

// Migrations holds the goose migrations, applied in file name order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that goose reads from.
const MigrationsDir = "migrations"

// Schemas holds JSON Schemas for structured JSONB payloads.
//
//go:embed schemas/*.json
var Schemas embed.FS

// RejectionDetailsSchema is the schema name for applications.rejection_details.
const RejectionDetailsSchema = "schemas/rejection_details.json"
