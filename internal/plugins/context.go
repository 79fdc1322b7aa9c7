package plugins

import (
	"go.uber.org/zap"

	"github.com/ahmedelshiha/NextAccounting229/pkg/sdk"
)

type pluginContext struct {
	log    *zap.Logger
	pub    sdk.Publisher
	config map[string]any
}

func newPluginContext(log *zap.Logger, pub sdk.Publisher, cfg map[string]any) sdk.Context {
	if cfg == nil {
		cfg = map[string]any{}
	}
	return &pluginContext{log: log, pub: pub, config: cfg}
}

func (c *pluginContext) Log() *zap.Logger         { return c.log }
func (c *pluginContext) Publisher() sdk.Publisher { return c.pub }
func (c *pluginContext) Config() map[string]any   { return c.config }
