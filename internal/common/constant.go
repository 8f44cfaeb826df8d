package common

// AuthorizationHeaderName carries the session token on API requests and the
// signed JWT on platform webhooks.
const AuthorizationHeaderName = "Authorization"

// RequestIDHeaderName is echoed on every response.
const RequestIDHeaderName = "X-Request-Id"
