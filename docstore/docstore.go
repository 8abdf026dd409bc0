package docstore

import "context"

// Document is a single named, namespaced key-value object. It is the unit
// of storage: every write replaces the whole document, there are no
// field-level patches.
type Document struct {
	// Name and Namespace identify the document. The pair is fixed for
	// the lifetime of a job-state store.
	Name      string
	Namespace string

	// Data holds the document's string-to-string mapping.
	Data map[string]string

	// Version is the backend-assigned resource token from the last read
	// or write. It is carried opaquely and is not checked on Replace.
	Version string
}

// New returns an empty document with the given identity.
func New(name, namespace string) *Document {
	return &Document{
		Name:      name,
		Namespace: namespace,
		Data:      make(map[string]string),
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	cp := *d
	cp.Data = make(map[string]string, len(d.Data))
	for k, v := range d.Data {
		cp.Data[k] = v
	}
	return &cp
}

// Store is the backing-store contract. A backend stores whole documents
// keyed by (name, namespace) and knows nothing about their contents.
type Store interface {
	// Read fetches a document. Returns an error wrapping
	// steward.ErrDocumentNotFound when the document does not exist.
	Read(ctx context.Context, name, namespace string) (*Document, error)

	// Create stores a new document. Returns an error wrapping
	// steward.ErrDocumentExists when a document with the same identity
	// already exists.
	Create(ctx context.Context, doc *Document) (*Document, error)

	// Replace overwrites an existing document in full. Returns an error
	// wrapping steward.ErrDocumentNotFound when the document does not
	// exist. The document's Version is not checked: the write wins
	// regardless of concurrent modifications.
	Replace(ctx context.Context, doc *Document) (*Document, error)

	// Migrate prepares backend schema or buckets. No-op for backends
	// without schema.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the backend connection.
	Close() error
}
