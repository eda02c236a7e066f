package tokenstore

// Repo persists the single bearer token of the client under a fixed key.
// Load returns errors.ErrTokenNotFound when nothing is stored.
type Repo interface {
	Load() (string, error)
	Save(token string) error
	Delete() error
}
