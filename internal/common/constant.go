package common

// AuthorizationHeaderName carries the bearer token on requests to the
// attachment service.
const AuthorizationHeaderName = "Authorization"

// APIKeyHeaderName identifies the application on requests to the
// attachment service.
const APIKeyHeaderName = "X-Api-Key"
