package logger

// Log levels accepted by Config.Level.
const (
	Debug   = "debug"
	Info    = "info"
	Warning = "warning"
	Error   = "error"
)

// Config holds the logger configuration.
type Config struct {
	// Level is one of Debug, Info, Warning, Error. Unknown values fall back to Info.
	Level string `yaml:"level" envconfig:"ZAP_LOGGER_LEVEL"`

	// ServiceName is attached to every entry as the "service" field.
	ServiceName string `yaml:"service_name"`

	// EnableTracing makes the *WithContext methods extract trace and span ids.
	EnableTracing bool `yaml:"enable_tracing"`
}
