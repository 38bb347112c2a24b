package config

// ConfigBackend is the platform store for non-secret keys: `defaults` on
// macOS, a YAML file elsewhere. Booleans travel as strings ("true"/"1").
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
