// Copyright © 2024 The ELPS authors

package compiler

import (
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// sourceCache holds the files read during one Compile call.  Dependencies
// shared by several test files are read from disk once.
type sourceCache struct {
	files *lru.Cache[string, []byte]
}

func newSourceCache(size int) (*sourceCache, error) {
	if size <= 0 {
		size = DefaultSourceCacheSize
	}
	files, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &sourceCache{files: files}, nil
}

func (c *sourceCache) ReadFile(path string) ([]byte, error) {
	if src, ok := c.files.Get(path); ok {
		return src, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.files.Add(path, src)
	return src, nil
}
