package middlewares

// gin context keys shared by the portal middlewares and handlers.
const (
	CtxRequestID = "request_id"
	CtxClientID  = "client_id"
	CtxState     = "session.state"
	CtxLayout    = "view.layout"
	CtxCSRFToken = "csrf.token"
)
