//go:build tools
// +build tools

// Package tools declares tool dependencies for this module.
//
// These imports are not used at runtime. They keep mockgen, invoked by the
// go:generate directive of contract/contract.go, tracked in go.mod.
package chat_signal

import (
	_ "go.uber.org/mock/mockgen"
)
