package pkg

import (
	"context"
	"fmt"
	"time"
)

// Framework is the main framework struct that wires all components together
type Framework struct {
	// Core components
	serverManager ServerManager
	router        RouterEngine
	security      SecurityManager

	// Data layer
	database DatabaseManager
	cache    CacheManager

	// Configuration
	config ConfigManager

	// Proxy
	proxy ProxyManager

	// Middleware
	globalMiddleware []MiddlewareFunc

	// Listeners bound (or adopted) by ListenBinds, keyed by canonical
	// bind-string; the restart path serializes this set for FD handover (§6).
	boundListeners map[string]*ItsiListener

	// Error handling
	errorHandler func(ctx Context, err error) error

	// Lifecycle hooks
	shutdownHooks []func(ctx context.Context) error
	startupHooks  []func(ctx context.Context) error

	// Itsi pipeline (§4.5-§4.8, §4.11)
	middlewareSet *MiddlewareSet
	workerPool    *WorkerPool

	// State
	isRunning bool
}

// UseMiddlewareSet installs the route-matched middleware stack (§4.6) that the
// itsi HTTP pipeline and gRPC dispatch run requests through. Must be called
// before Listen/ListenTLS/ListenQUIC/ListenWithConfig.
func (f *Framework) UseMiddlewareSet(set *MiddlewareSet) {
	f.middlewareSet = set
}

// FrameworkConfig holds the complete framework configuration
type FrameworkConfig struct {
	// Server configuration
	ServerConfig ServerConfig

	// Database configuration
	DatabaseConfig DatabaseConfig

	// Cache configuration
	CacheConfig CacheConfig

	// Configuration file paths
	ConfigFiles []string

	// Security configuration
	SecurityConfig SecurityConfig

	// Proxy configuration
	ProxyConfig ProxyConfig
}

// New creates a new Framework instance with the given configuration
func New(config FrameworkConfig) (*Framework, error) {
	configureRootLoggerFromEnv()

	f := &Framework{
		globalMiddleware: make([]MiddlewareFunc, 0),
		shutdownHooks:    make([]func(ctx context.Context) error, 0),
		startupHooks:     make([]func(ctx context.Context) error, 0),
	}

	// A panicking handler must not take the whole process down with it: the
	// itsi worker pool runs handlers on shared goroutines (§4.7), so this is
	// installed first and runs outermost of every global middleware.
	recoverLogger := NewLogger(nil)
	f.globalMiddleware = append(f.globalMiddleware, RecoverMiddleware(func(ctx Context, recovered interface{}) error {
		recoverLogger.Error(fmt.Sprintf("panic recovered in request handler: %v", recovered))
		if ctx.Response().Written() {
			return nil
		}
		_ = ctx.Response().WriteString(500, "Internal Server Error")
		return nil
	}))

	// Initialize configuration manager
	f.config = NewConfigManager()

	// Load configuration files if specified
	for _, configFile := range config.ConfigFiles {
		if err := f.config.Load(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configFile, err)
		}
	}

	// Initialize database manager; without a complete database
	// configuration the no-op manager is used instead
	if isDatabaseConfigured(config.DatabaseConfig) {
		dbMgr := NewDatabaseManager()
		if err := dbMgr.Connect(config.DatabaseConfig); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		f.database = dbMgr
	} else {
		f.database = NewNoopDatabaseManager()
	}

	// Initialize cache manager with configuration
	f.cache = NewCacheManager(config.CacheConfig)

	// Initialize security manager
	securityMgr, err := NewSecurityManager(f.database, config.SecurityConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create security manager: %w", err)
	}
	f.security = securityMgr

	// Initialize proxy manager
	proxyMgr := NewProxyManager(&config.ProxyConfig, f.cache)
	f.proxy = proxyMgr

	// Initialize router
	router := NewRouter()
	f.router = router

	// Initialize server manager
	serverMgr := NewServerManager()
	f.serverManager = serverMgr

	return f, nil
}

// Router returns the framework's router for route registration
func (f *Framework) Router() RouterEngine {
	return f.router
}

// Use adds global middleware to the framework
func (f *Framework) Use(middleware ...MiddlewareFunc) {
	f.globalMiddleware = append(f.globalMiddleware, middleware...)
}

// SetErrorHandler sets a custom error handler
func (f *Framework) SetErrorHandler(handler func(ctx Context, err error) error) {
	f.errorHandler = handler
}

// RegisterShutdownHook registers a function to be called during graceful shutdown
func (f *Framework) RegisterShutdownHook(hook func(ctx context.Context) error) {
	f.shutdownHooks = append(f.shutdownHooks, hook)
}

// RegisterStartupHook registers a function to be called during startup
func (f *Framework) RegisterStartupHook(hook func(ctx context.Context) error) {
	f.startupHooks = append(f.startupHooks, hook)
}

// Listen starts the framework server on the specified address
func (f *Framework) Listen(addr string) error {
	return f.ListenWithConfig(addr, ServerConfig{})
}

// wireItsiPipeline starts the worker pool (if a middleware set was installed
// via UseMiddlewareSet) and installs it on both the server and the router, so
// HTTP requests and gRPC unary calls dispatch through the same fiber-scheduler
// pool (§4.7, §4.11).
func (f *Framework) wireItsiPipeline(server Server) error {
	if f.middlewareSet == nil {
		return nil
	}
	if f.workerPool == nil {
		workers := f.config.GetIntWithDefault("server.workers", 4)
		if workers <= 0 {
			workers = 4
		}
		f.workerPool = NewWorkerPool(workers, 0, func(ctx Context) error {
			return f.runMiddlewarePipeline(ctx)
		}, func(service GRPCService, method string, req interface{}) (interface{}, error) {
			extended, ok := service.(GRPCServiceExtended)
			if !ok {
				return nil, NewCoreError(KindUnsupportedProtocol, "gRPC service does not support unary dispatch")
			}
			return extended.HandleUnary(context.Background(), method, req)
		})
		if err := f.workerPool.Start(); err != nil {
			return fmt.Errorf("failed to start worker pool: %w", err)
		}
	}

	if hs, ok := server.(*httpServer); ok {
		hs.SetMiddlewareSet(f.middlewareSet)
		hs.SetWorkerPool(f.workerPool)
	}
	if r, ok := f.router.(*router); ok {
		r.SetWorkerPool(f.workerPool)
	}
	return nil
}

// runMiddlewarePipeline walks the Before/After chain resolved from the
// framework's MiddlewareSet for ctx, terminating at the RubyApp/handler layer.
// This is the same walk as httpServer.runPipeline, duplicated here (rather
// than shared) because the Framework dispatches independently of any one
// httpServer when multiple listeners share one worker pool.
func (f *Framework) runMiddlewarePipeline(ctx Context) error {
	layers, _, err := f.middlewareSet.StackFor(ctx)
	if err != nil {
		return err
	}
	stopIndex := len(layers) - 1
	var beforeErr error
	for i, layer := range layers {
		done, err := layer.Before(ctx)
		if err != nil {
			stopIndex = i
			beforeErr = err
			break
		}
		if done {
			stopIndex = i
			break
		}
	}
	for i := stopIndex; i >= 0; i-- {
		if err := layers[i].After(ctx); err != nil && beforeErr == nil {
			beforeErr = err
		}
	}
	return beforeErr
}

// ListenTLS starts the framework server with TLS on the specified address
func (f *Framework) ListenTLS(addr, certFile, keyFile string) error {
	config := ServerConfig{}
	server := f.serverManager.NewServer(config)

	// Set router and middleware
	server.SetRouter(f.router)
	server.SetMiddleware(f.globalMiddleware...)

	if f.errorHandler != nil {
		server.SetErrorHandler(f.errorHandler)
	}

	// Register shutdown hooks
	for _, hook := range f.shutdownHooks {
		server.RegisterShutdownHook(hook)
	}

	// Run startup hooks
	ctx := context.Background()
	for _, hook := range f.startupHooks {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("startup hook failed: %w", err)
		}
	}

	f.isRunning = true
	return server.ListenTLS(addr, certFile, keyFile)
}

// ListenQUIC starts the framework server with QUIC on the specified address
func (f *Framework) ListenQUIC(addr, certFile, keyFile string) error {
	config := ServerConfig{
		EnableQUIC: true,
	}
	server := f.serverManager.NewServer(config)

	// Set router and middleware
	server.SetRouter(f.router)
	server.SetMiddleware(f.globalMiddleware...)

	if f.errorHandler != nil {
		server.SetErrorHandler(f.errorHandler)
	}

	// Register shutdown hooks
	for _, hook := range f.shutdownHooks {
		server.RegisterShutdownHook(hook)
	}

	// Run startup hooks
	ctx := context.Background()
	for _, hook := range f.startupHooks {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("startup hook failed: %w", err)
		}
	}

	f.isRunning = true
	return server.ListenQUIC(addr, certFile, keyFile)
}

// ListenWithConfig starts the framework server with custom configuration
func (f *Framework) ListenWithConfig(addr string, config ServerConfig) error {
	server := f.serverManager.NewServer(config)

	// Set router and middleware
	server.SetRouter(f.router)
	server.SetMiddleware(f.globalMiddleware...)

	if f.errorHandler != nil {
		server.SetErrorHandler(f.errorHandler)
	}

	// Set managers for context creation
	logger := NewLogger(nil)
	if httpServer, ok := server.(*httpServer); ok {
		httpServer.SetManagers(logger, f.database, f.cache, f.config, f.security)
	}

	// Register shutdown hooks
	for _, hook := range f.shutdownHooks {
		server.RegisterShutdownHook(hook)
	}

	// Run startup hooks
	ctx := context.Background()
	for _, hook := range f.startupHooks {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("startup hook failed: %w", err)
		}
	}

	if err := f.wireItsiPipeline(server); err != nil {
		return err
	}

	if err := f.serverManager.AddServer(addr, server); err != nil {
		return err
	}
	f.isRunning = true
	return server.Listen(addr)
}

// Shutdown gracefully shuts down the framework
func (f *Framework) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Run shutdown hooks
	for _, hook := range f.shutdownHooks {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("shutdown hook failed: %w", err)
		}
	}

	// Shutdown all servers if running: drain in-flight HTTP first, then post
	// one Shutdown job per worker and wait out the deadline, then close any
	// listener the HTTP server's own shutdown didn't own (§4.10's
	// ShutdownPending-then-Shutdown order). The isRunning guard makes a second
	// Shutdown equivalent to the first.
	if f.isRunning {
		if err := f.serverManager.GracefulShutdown(timeout); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		if f.workerPool != nil {
			f.workerPool.Shutdown(timeout)
		}

		for _, listener := range f.boundListeners {
			_ = listener.Close()
		}
		f.boundListeners = nil
	}

	// Close database connections (the no-op manager has none)
	if f.database != nil && !isNoopDatabase(f.database) {
		if err := f.database.Close(); err != nil {
			return fmt.Errorf("database close failed: %w", err)
		}
	}

	// Cleanup cache
	if f.cache != nil {
		f.cache.Clear()
	}

	f.isRunning = false
	return nil
}

// IsRunning returns whether the framework is currently running
func (f *Framework) IsRunning() bool {
	return f.isRunning
}

// ServerManager returns the framework's server manager
func (f *Framework) ServerManager() ServerManager {
	return f.serverManager
}

// Database returns the framework's database manager
func (f *Framework) Database() DatabaseManager {
	return f.database
}

// Cache returns the framework's cache manager
func (f *Framework) Cache() CacheManager {
	return f.cache
}

// Security returns the framework's security manager
func (f *Framework) Security() SecurityManager {
	return f.security
}

// Config returns the framework's configuration manager
func (f *Framework) Config() ConfigManager {
	return f.config
}

// Proxy returns the framework's proxy manager
func (f *Framework) Proxy() ProxyManager {
	return f.proxy
}
