package config

// ConfigBackend abstracts where brain settings live on a given platform.
// On macOS that is the user defaults database for the com.studykit.brain
// domain; elsewhere it is a JSON file under the XDG config directory.
// Secrets never pass through this interface.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
