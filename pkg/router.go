package pkg

// HandlerFunc represents a request handler function
type HandlerFunc func(ctx Context) error

// MiddlewareFunc represents a middleware function
type MiddlewareFunc func(ctx Context, next HandlerFunc) error

// WebSocketHandler represents a WebSocket handler function
type WebSocketHandler func(ctx Context, conn WebSocketConnection) error

// RouterEngine defines the routing interface for the framework
type RouterEngine interface {
	// HTTP method routing
	GET(path string, handler HandlerFunc, middleware ...MiddlewareFunc) RouterEngine
	POST(path string, handler HandlerFunc, middleware ...MiddlewareFunc) RouterEngine
	PUT(path string, handler HandlerFunc, middleware ...MiddlewareFunc) RouterEngine
	DELETE(path string, handler HandlerFunc, middleware ...MiddlewareFunc) RouterEngine
	PATCH(path string, handler HandlerFunc, middleware ...MiddlewareFunc) RouterEngine
	HEAD(path string, handler HandlerFunc, middleware ...MiddlewareFunc) RouterEngine
	OPTIONS(path string, handler HandlerFunc, middleware ...MiddlewareFunc) RouterEngine

	// Generic method routing
	Handle(method, path string, handler HandlerFunc, middleware ...MiddlewareFunc) RouterEngine

	// Route groups
	Group(prefix string, middleware ...MiddlewareFunc) RouterEngine

	// Host-specific routing for multi-tenancy
	Host(hostname string) RouterEngine

	// Static file serving
	Static(prefix string, filesystem VirtualFS) RouterEngine
	StaticFile(path, filepath string) RouterEngine

	// WebSocket routing
	WebSocket(path string, handler WebSocketHandler, middleware ...MiddlewareFunc) RouterEngine

	// gRPC-over-HTTP/2 routing (§4.11)
	GRPC(service GRPCService, middleware ...MiddlewareFunc) RouterEngine

	// Middleware management
	Use(middleware ...MiddlewareFunc) RouterEngine

	// Route matching
	Match(method, path, host string) (*Route, map[string]string, bool)

	// Route information
	Routes() []*Route
}

// Route represents a registered route
type Route struct {
	Method      string
	Path        string
	Handler     HandlerFunc
	Middleware  []MiddlewareFunc
	Host        string
	Name        string
	IsWebSocket bool
	IsStatic    bool

	// WebSocket-specific fields
	WebSocketHandler WebSocketHandler

	// gRPC-specific fields
	GRPCService GRPCService
}

// WebSocketConnection represents a WebSocket connection
type WebSocketConnection interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	RemoteAddr() string
	LocalAddr() string
}

// GRPCService represents a gRPC service
type GRPCService interface {
	ServiceName() string
	Methods() []string
}
