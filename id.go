package steward

import "github.com/xraph/steward/id"

// ID is the primary identifier type for generated Steward identifiers.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
