//go:build tools
// +build tools

// This file pins dev tools (like the goose migration CLI) into go.mod
// so everyone/CI uses the same versions. It is excluded from
// normal builds by the 'tools' build tag above.

package tools

import (
	_ "github.com/pressly/goose/v3/cmd/goose"
)
