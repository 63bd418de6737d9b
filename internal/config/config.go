package config

type Config interface {
	EnvConfig
	SecurityConfig
	DatabaseConfig
}

type mainConfig struct {
	EnvVars
	Security
	Database
}

func New() Config {
	return mainConfig{}
}
