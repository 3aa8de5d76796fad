package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ RawConfigLoader = (*EnvConfigLoader)(nil)
	_ RawConfigLoader = staticRawConfigLoader{}
	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ OptionsResolver = GoOptionsResolver{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
