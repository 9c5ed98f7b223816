package util

import (
	"path"
	"strings"
)

const defaultStem = "image"

// SafeBase 去掉上传文件名中的目录部分（兼容 Windows 分隔符）
func SafeBase(filename string) string {
	name := strings.TrimSpace(strings.ReplaceAll(filename, "\\", "/"))
	name = path.Base(name)
	if name == "." || name == "/" || name == "" {
		return defaultStem
	}
	return name
}

// SplitExt 把文件名拆成 stem 和扩展名
//
//	"photo.jpg"   -> "photo", ".jpg"
//	"a.b.c"       -> "a.b", ".c"
//	".bashrc"     -> ".bashrc", ""
//	"c"           -> "c", ""
//
// 开头的点不算扩展名分隔符；以点结尾时扩展名视为空。
func SplitExt(name string) (stem, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name, ""
	}
	if strings.Trim(name[:idx], ".") == "" {
		return name, ""
	}
	if idx == len(name)-1 {
		return name[:idx], ""
	}
	return name[:idx], name[idx:]
}
