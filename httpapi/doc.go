// Package httpapi serves the auth endpoints over HTTP with a chi router.
//
// Routes:
//
//	POST /api/auth/signup/email/request-otp  {email,name}
//	POST /api/auth/signup/email/verify-otp   {email,otp,name}
//	POST /api/auth/login/email/request-otp   {email}
//	POST /api/auth/login/email/verify-otp    {email,otp}
//	GET  /api/users/me                       bearer token
//	GET  /api/health
//	GET  /metrics                            when a metrics handler is set
//
// Failures are JSON bodies with a stable "error" code. Unexpected errors
// are logged and answered with an opaque SERVER_ERROR.
package httpapi
