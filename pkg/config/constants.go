package config

const (
	// EnvPrefix namespaces every environment variable the app reads.
	EnvPrefix = "bloomflow"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "BLOOMFLOW_DB_DSN"
	EnvDBHost = "BLOOMFLOW_DB_HOST"
	EnvDBUser = "BLOOMFLOW_DB_USER"
	EnvDBName = "BLOOMFLOW_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
