package patron

import (
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

// Re-export common types for convenience so users don't have to import the
// types package.

// Micro is re-exported from types package.
type Micro = types.Micro

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export amount helpers
var (
	ParseMajor     = types.ParseMajor
	MustParseMajor = types.MustParseMajor
)

// Defaults re-exported from the subscription package.
const (
	DefaultPeriod     = subscription.DefaultPeriod
	DefaultMaxRetries = subscription.DefaultMaxRetries
)
