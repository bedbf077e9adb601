package input

import (
	"os"
)

// cacheEnabled 检查缓存目录
// 返回：目录为空、不存在或不是目录时返回false（禁用缓存）
func cacheEnabled(dir string) bool {
	if dir == "" {
		log.Info("input cache disabled")
		return false
	}
	if stat, err := os.Stat(dir); err != nil || !stat.IsDir() {
		log.Warnf("input cache disabled: %s is not a directory", dir)
		return false
	}
	log.Infof("input cache at %s", dir)
	return true
}
