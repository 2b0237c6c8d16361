//go:build tools

package tools

// This file tracks tool dependencies for reproducible builds.
// Run `go mod tidy` after adding/removing tools here.
// Migrations normally run embedded at server start; the goose CLI is kept for
// operators who need to inspect or roll back by hand. oapi-codegen backs the
// go:generate directive in api/.

import (
	_ "github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen"
	_ "github.com/pressly/goose/v3/cmd/goose"
)
