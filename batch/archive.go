package batch

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/chaos-io/clearbg/util"
)

// archive 在内存中构建 zip，保证条目名唯一
type archive struct {
	buf  bytes.Buffer
	zw   *zip.Writer
	used map[string]struct{}
	now  time.Time
}

func newArchive() *archive {
	a := &archive{
		used: make(map[string]struct{}),
		now:  time.Now(),
	}
	a.zw = zip.NewWriter(&a.buf)
	return a
}

// add 写入一个条目，重名时在扩展名前追加 -2、-3 ...，返回实际使用的名字
func (a *archive) add(name string, content []byte) (string, error) {
	name = a.unique(name)

	w, err := a.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: a.now,
	})
	if err != nil {
		return name, fmt.Errorf("create entry: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		return name, fmt.Errorf("write entry: %w", err)
	}

	a.used[name] = struct{}{}
	return name, nil
}

func (a *archive) unique(name string) string {
	if _, ok := a.used[name]; !ok {
		return name
	}
	stem, ext := util.SplitExt(name)
	for i := 2; ; i++ {
		candidate := stem + "-" + strconv.Itoa(i) + ext
		if _, ok := a.used[candidate]; !ok {
			return candidate
		}
	}
}

func (a *archive) close() ([]byte, error) {
	if err := a.zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return a.buf.Bytes(), nil
}
