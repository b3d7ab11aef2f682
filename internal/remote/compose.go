package remote

// Backend assembles a Client from independent capability implementations.
type Backend struct {
	Documents
	Identities
	Files
	Messages
}

var _ Client = (*Backend)(nil)

// Compose builds a Client. Every capability is required.
func Compose(docs Documents, ids Identities, files Files, msgs Messages) *Backend {
	if docs == nil || ids == nil || files == nil || msgs == nil {
		panic("remote: all capabilities required")
	}
	return &Backend{Documents: docs, Identities: ids, Files: files, Messages: msgs}
}
