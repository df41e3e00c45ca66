package common

// AuthorizationHeaderName carries the bearer credential on inbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix is the scheme prefix expected in AuthorizationHeaderName.
const BearerPrefix = "Bearer "

// UserCacheNamespace prefixes identity cache keys: "user:<email>".
const UserCacheNamespace = "user"
