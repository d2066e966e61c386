package config

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var reloadMu sync.Mutex

func load(configPath string, out any, onChange ...func()) error {
	if !fileExist(configPath) {
		return fmt.Errorf("config file not exist, configPath=%v", configPath)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.OnConfigChange(func(e fsnotify.Event) {
		reloadMu.Lock()
		defer reloadMu.Unlock()
		log.Println("配置文件变更", e.Name)
		// 热更新失败保留旧值
		if err := v.Unmarshal(out); err != nil {
			log.Println("viper unmarshal change config data failed:", err)
			return
		}
		for _, fn := range onChange {
			if fn != nil {
				fn()
			}
		}
	})
	v.WatchConfig()

	if err := v.ReadInConfig(); err != nil {
		return err
	}
	return v.Unmarshal(out)
}

func fileExist(fileName string) bool {
	_, err := os.Stat(fileName)
	return err == nil
}
