package crawler

import (
	"context"
	"strconv"

	"parser2gis/internal/dom"
	"parser2gis/internal/rules"
)

const pageLinkPattern = `^.*/search/.*/page/(\d+)`

// pageLinks 当前页面上的翻页链接，按文档中首次出现的顺序
type pageLinks struct {
	order []int
	nodes map[int]*dom.Node
}

func newPageLinks(tree *dom.Tree) pageLinks {
	p := pageLinks{nodes: make(map[int]*dom.Node)}
	re, err := rules.Compile(pageLinkPattern)
	if err != nil {
		return p
	}
	for _, n := range tree.Links() {
		href, _ := n.Attr("href")
		m := re.FindStringSubmatch(href)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, ok := p.nodes[num]; !ok {
			p.order = append(p.order, num)
		}
		p.nodes[num] = n
	}
	return p
}

// next 计算下一页。向目标页行进时，在当前页之后的可用页中选与目标最接近的一页，
// 距离相同取先出现者；没有可选页或不在行进时为当前页 +1。
func (c *crawl) next(p pageLinks) int {
	if c.walk == 0 {
		return c.page + 1
	}
	best, found := 0, false
	for _, n := range p.order {
		if n <= c.page {
			continue
		}
		if !found || abs(n-c.walk) < abs(best-c.walk) {
			best, found = n, true
		}
	}
	if !found {
		return c.page + 1
	}
	return best
}

// paginate 点击下一页，页面上没有该页链接时返回 false
func (e *Engine) paginate(ctx context.Context, c *crawl) (bool, error) {
	tree, err := e.tab.Document(ctx, true)
	if err != nil {
		return false, err
	}
	pages := newPageLinks(tree)
	next := c.next(pages)
	node, ok := pages.nodes[next]
	if !ok {
		c.log.Debug("没有更多页面", "page", c.page, "next", next)
		return false, nil
	}
	if err := e.tab.Click(ctx, node); err != nil {
		return false, err
	}
	c.page = next
	c.log.Debug("已翻页", "page", c.page)
	if c.walk > 0 && c.walk <= c.page {
		c.walk = 0
	}
	return true, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
