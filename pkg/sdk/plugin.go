package sdk

import "go.uber.org/zap"

// Plugin is a publisher collaborator loaded into the gateway process, for
// example a sync job that announces booking changes made outside the web app.
type Plugin interface {
	Init(ctx Context) error
	Stop() error
}

// Context is what a plugin receives on Init.
type Context interface {
	Log() *zap.Logger
	Publisher() Publisher
	Config() map[string]any
}
