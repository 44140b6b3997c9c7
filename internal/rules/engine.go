package rules

import (
	"regexp"
	"strings"
	"sync"
)

// Engine 一组浏览器 setBlockedURLs 风格的通配符，任意一条命中即命中
type Engine struct {
	mu       sync.RWMutex
	patterns []string
}

// NewGlob 由通配符列表创建条件集合
func NewGlob(patterns []string) *Engine {
	return &Engine{patterns: append([]string(nil), patterns...)}
}

// Add 追加通配符
func (e *Engine) Add(patterns ...string) {
	e.mu.Lock()
	e.patterns = append(e.patterns, patterns...)
	e.mu.Unlock()
}

// Len 通配符数量
func (e *Engine) Len() int {
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.patterns)
}

// Match 任意通配符命中返回 true
func (e *Engine) Match(url string) bool {
	if e == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.patterns {
		if glob(url, p) {
			return true
		}
	}
	return false
}

type cache struct {
	m sync.Map // pattern -> *regexp.Regexp | error
}

func (c *cache) Get(pattern string) (*regexp.Regexp, error) {
	if v, ok := c.m.Load(pattern); ok {
		if re, ok := v.(*regexp.Regexp); ok {
			return re, nil
		}
		return nil, v.(error)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		c.m.Store(pattern, err)
		return nil, err
	}
	c.m.Store(pattern, re)
	return re, nil
}

var regexCache = &cache{}

// Compile 编译并缓存正则
func Compile(pattern string) (*regexp.Regexp, error) {
	return regexCache.Get(pattern)
}

func matchRegex(s, pattern string) bool {
	re, err := regexCache.Get(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// glob 与浏览器 setBlockedURLs 相同的语义：'*' 匹配任意字符序列，整串匹配
func glob(s, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return s == pattern
	}
	return matchRegex(s, globToRegexp(pattern))
}

func globToRegexp(pattern string) string {
	parts := strings.Split(pattern, "*")
	for i := range parts {
		parts[i] = regexp.QuoteMeta(parts[i])
	}
	return "^" + strings.Join(parts, ".*") + "$"
}
