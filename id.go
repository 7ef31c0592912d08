package patron

import "github.com/xraph/patron/id"

// ID is the identifier type of records the engine creates.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
