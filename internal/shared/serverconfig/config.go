package serverconfig

import (
	"os"
	"sync"

	"LandVerse/internal/shared/config"
)

const defaultConfigRelPath = "configs/conf.yml"

var (
	mu   sync.RWMutex
	Conf Config
)

// Load 读取服务端配置，cfgPath 为空时使用 configs/conf.yml。
// onChange 在配置文件热更新后收到新配置的副本。
func Load(cfgPath string, onChange ...func(Config)) {
	if cfgPath == "" {
		cfgPath = defaultConfigRelPath
	}
	reload := func() {
		mu.Lock()
		Conf.applyDefaults()
		snap := Conf
		mu.Unlock()
		for _, fn := range onChange {
			fn(snap)
		}
	}
	mu.Lock()
	config.Load(cfgPath, &Conf, reload)
	Conf.applyDefaults()
	mu.Unlock()
	// 环境变量优先；未设置时回填配置中的 jwt_secret，兼容本地开发。
	if os.Getenv("JWT_SECRET") == "" && Conf.JWTSecret != "" {
		_ = os.Setenv("JWT_SECRET", Conf.JWTSecret)
	}
}

// Snapshot 返回当前配置的副本，热更新期间读取也安全。
func Snapshot() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Conf
}
