// Package db provides the embedded coupon schema.
package db

import _ "embed"

// Schema contains the DDL statements for the coupons table.
//
//go:embed migrations/001_schema.sql
var Schema string
