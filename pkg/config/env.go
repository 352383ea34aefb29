package config

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultVATCutover = "2025-05-01"

	EnvAppEnv     = "FUELDROP_APP_ENV"
	EnvPort       = "FUELDROP_APP_PORT"
	EnvDBDSN      = "FUELDROP_DB_DSN"
	EnvDBHost     = "FUELDROP_DB_HOST"
	EnvDBUser     = "FUELDROP_DB_USER"
	EnvDBName     = "FUELDROP_DB_NAME"
	EnvRedisURL   = "FUELDROP_REDIS_URL"
	EnvJWTSecret  = "FUELDROP_JWT_SECRET"
	EnvJWTIssuer  = "FUELDROP_JWT_ISSUER"
	EnvVATCutover = "FUELDROP_PRICING_VAT_CUTOVER"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
