package config

import (
	"os"
	"path/filepath"
)

const defaultConfigRelPath = "configs/conf.yml"

// Load 读取配置到 out（必须是指针），失败直接 panic，只在进程启动时调用。
//
// 约定：
// 1) cfgName 为绝对路径时直接使用；
// 2) 相对路径先按当前目录解析，不存在则从当前目录向上查找同名相对路径；
// 3) 为空时向上查找 configs/conf.yml。
func Load(cfgName string, out any, onChange ...func()) {
	path, err := Resolve(cfgName)
	if err != nil {
		panic(err)
	}
	if err := load(path, out, onChange...); err != nil {
		panic(err)
	}
}

// Resolve 把配置名解析成存在的文件路径。
func Resolve(cfgName string) (string, error) {
	if cfgName != "" && filepath.IsAbs(cfgName) {
		return cfgName, nil
	}
	curDir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	rel := cfgName
	if rel == "" {
		rel = defaultConfigRelPath
	}
	return findConfigUpward(curDir, rel)
}

func findConfigUpward(startDir, rel string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, rel)
		if fileExist(candidate) {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", &NotFoundError{Rel: rel, From: startDir}
		}
		dir = parent
	}
}

type NotFoundError struct {
	Rel  string
	From string
}

func (e *NotFoundError) Error() string {
	return "config file not exist, searched " + e.Rel + " from: " + e.From
}
