package config

const EnvPrefix = "PROCUREMENT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	PaymentPolicyFullyPaid = "fully_paid"
	PaymentPolicyOptional  = "payment_optional"
)

const (
	EnvAppEnv   = "PROCUREMENT_APP_ENV"
	EnvPort     = "PROCUREMENT_APP_PORT"
	EnvLogLevel = "PROCUREMENT_LOG_LEVEL"

	EnvDBDSN    = "PROCUREMENT_DB_DSN"
	EnvDBDriver = "PROCUREMENT_DB_DRIVER"
	EnvDBHost   = "PROCUREMENT_DB_HOST"
	EnvDBUser   = "PROCUREMENT_DB_USER"
	EnvDBName   = "PROCUREMENT_DB_NAME"

	EnvRedisURL = "PROCUREMENT_REDIS_URL"

	EnvGCPProjectID            = "PROCUREMENT_GCP_PROJECT_ID"
	EnvPubSubPurchaseOrdersTop = "PROCUREMENT_PUBSUB_PURCHASE_ORDERS_TOPIC"

	EnvCompletionPaymentPolicy = "PROCUREMENT_COMPLETION_PAYMENT_POLICY"
	EnvOperationTimeout        = "PROCUREMENT_OPERATION_TIMEOUT"
	EnvOrderMaxRetries         = "PROCUREMENT_ORDER_MAX_RETRIES"
	EnvDefaultCurrency         = "PROCUREMENT_DEFAULT_CURRENCY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
