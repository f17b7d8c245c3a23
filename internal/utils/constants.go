package utils

const (
	DevEnvironment  = "dev"
	ProdEnvironment = "prod"

	CORSLowSecurityAllowedOriginLocalhost = "http://localhost:*"
)
