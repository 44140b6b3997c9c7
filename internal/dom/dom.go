// Package dom 将一次 DOM.getDocument 快照构建为可检索的内存树。
// 树在构建后不再修改，节点 ID 仅在下一次快照之前有效。
package dom

import (
	"errors"
	"fmt"
)

// ErrOddAttributes 属性列表长度为奇数，快照不合法
var ErrOddAttributes = errors.New("dom: attribute list has odd length")

// RawNode 协议返回的原始节点
type RawNode struct {
	NodeID        int       `json:"nodeId"`
	BackendNodeID int       `json:"backendNodeId"`
	NodeType      int       `json:"nodeType"`
	NodeName      string    `json:"nodeName"`
	LocalName     string    `json:"localName"`
	NodeValue     string    `json:"nodeValue"`
	Attributes    []string  `json:"attributes,omitempty"`
	Children      []RawNode `json:"children,omitempty"`
}

// Node DOM 节点
type Node struct {
	ID        int
	BackendID int
	Type      int
	Name      string // nodeName
	Tag       string // localName
	Value     string
	Attrs     Attributes
	Children  []*Node
}

// Attr 读取属性
func (n *Node) Attr(name string) (string, bool) {
	return n.Attrs.Get(name)
}

func (n *Node) String() string {
	return fmt.Sprintf("Node(id=%d, tag=%s, attrs=%d, children=%d)", n.ID, n.Tag, n.Attrs.Len(), len(n.Children))
}

// Tree 一次快照
type Tree struct {
	Root *Node
	size int
}

// NewTree 由原始根节点构建快照
func NewTree(root RawNode) (*Tree, error) {
	t := &Tree{}
	n, err := t.build(root)
	if err != nil {
		return nil, err
	}
	t.Root = n
	return t, nil
}

func (t *Tree) build(raw RawNode) (*Node, error) {
	attrs, err := newAttributes(raw.Attributes)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", raw.NodeID, err)
	}
	n := &Node{
		ID:        raw.NodeID,
		BackendID: raw.BackendNodeID,
		Type:      raw.NodeType,
		Name:      raw.NodeName,
		Tag:       raw.LocalName,
		Value:     raw.NodeValue,
		Attrs:     attrs,
	}
	t.size++
	if len(raw.Children) > 0 {
		n.Children = make([]*Node, 0, len(raw.Children))
	}
	for _, c := range raw.Children {
		child, err := t.build(c)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

// Len 节点总数
func (t *Tree) Len() int { return t.size }

// Search 先序遍历，按文档顺序返回所有满足 pred 的节点
func (t *Tree) Search(pred func(*Node) bool) []*Node {
	found := []*Node{}
	if t == nil || t.Root == nil {
		return found
	}
	var walk func(*Node)
	walk = func(n *Node) {
		if pred(n) {
			found = append(found, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
	return found
}

// Links 返回所有带 href 的 a 节点
func (t *Tree) Links() []*Node {
	return t.Search(func(n *Node) bool {
		if n.Tag != "a" {
			return false
		}
		_, ok := n.Attr("href")
		return ok
	})
}
