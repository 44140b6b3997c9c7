package crawler

import (
	"encoding/base64"
	"net/url"
	"strings"

	"parser2gis/internal/dom"
	"parser2gis/internal/rules"
)

// Extraction 单条记录的获取方式
type Extraction int

const (
	// ExtractXHR 点击链接并截获其数据请求
	ExtractXHR Extraction = iota
	// ExtractInitialState 读取页面内嵌的 initialState
	ExtractInitialState
)

// Shape 页面形态，抓取主循环按其能力执行
type Shape struct {
	Name string
	// URLPattern 用于选择形态的 URL 正则（从开头匹配）
	URLPattern string
	// ValidLink 判断 href 是否为可点击的条目链接
	ValidLink func(href string) bool
	// Paginate 是否翻页
	Paginate bool
	// StopOnNoNewLinks 没有新链接时结束抓取
	StopOnNoNewLinks bool
	// RejectStale 快照包含已访问链接时视为旧快照并重新获取
	RejectStale bool
	Extract         Extraction
	NotFoundMessage string
}

const (
	statLinkPattern   = `^.*/firm/.*\?stat=(?P<data>[a-zA-Z0-9%]+)`
	inBuildingPattern = `^.+/firm/[^/]+$`
)

var (
	// SearchShape 搜索结果列表
	SearchShape = Shape{
		Name:            "search",
		URLPattern:      `https?://2gis\.[^/]+/[^/]+/search/.*`,
		ValidLink:       validStatLink,
		Paginate:        true,
		RejectStale:     true,
		Extract:         ExtractXHR,
		NotFoundMessage: "服务器返回“没有精确匹配 / 未找到”",
	}
	// BuildingShape 建筑内企业列表，随滚动懒加载
	BuildingShape = Shape{
		Name:             "in_building",
		URLPattern:       `https?://2gis\.[^/]+/[^/]+/inside/.*`,
		ValidLink:        validInBuildingLink,
		StopOnNoNewLinks: true,
		Extract:          ExtractXHR,
		NotFoundMessage:  "服务器返回“没有精确匹配 / 未找到”",
	}
	// FirmShape 单个企业页面
	FirmShape = Shape{
		Name:            "firm",
		URLPattern:      `https?://2gis\.[^/]+(/[^/]+)?/firm/.*`,
		Extract:         ExtractInitialState,
		NotFoundMessage: "服务器返回“企业未找到”",
	}
)

// ShapeFor 按 URL 选择页面形态，默认为搜索结果列表
func ShapeFor(rawURL string) Shape {
	for _, s := range []Shape{BuildingShape, FirmShape, SearchShape} {
		if re, err := rules.Compile("^(?:" + s.URLPattern + ")"); err == nil && re.MatchString(rawURL) {
			return s
		}
	}
	return SearchShape
}

// match 返回满足形态链接谓词的 a 节点
func (s Shape) match(n *dom.Node) bool {
	if n.Tag != "a" || s.ValidLink == nil {
		return false
	}
	href, ok := n.Attr("href")
	return ok && s.ValidLink(href)
}

// validStatLink 链接携带可 base64 解码的 stat 签名
func validStatLink(href string) bool {
	re, err := rules.Compile(statLinkPattern)
	if err != nil {
		return false
	}
	m := re.FindStringSubmatch(href)
	if m == nil {
		return false
	}
	data, err := url.PathUnescape(m[re.SubexpIndex("data")])
	if err != nil {
		return false
	}
	_, err = base64.StdEncoding.DecodeString(base64Alphabet(data))
	return err == nil
}

func validInBuildingLink(href string) bool {
	re, err := rules.Compile(inBuildingPattern)
	return err == nil && re.MatchString(href)
}

// base64Alphabet 去掉 base64 字母表之外的字符
func base64Alphabet(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '/', r == '=':
			return r
		}
		return -1
	}, s)
}
