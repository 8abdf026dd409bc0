package redis

// Redis key naming for steward documents.
// All keys are prefixed with "steward:" to avoid collisions.

const keyPrefix = "steward:"

// docKey returns the key for a document: steward:doc:{namespace}:{name}
func docKey(name, namespace string) string {
	return keyPrefix + "doc:" + namespace + ":" + name
}
