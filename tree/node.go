package tree

import (
	"bytes"
	"strconv"
)

//Node is a single vertex in a phylogeny
type Node struct {
	PAR  *Node
	CHLD []*Node
	NAME string
	LEN  float64 // length of the branch subtending this node
	ID   int     // stable index assigned by Tree; -1 until indexed
}

//NewNode will return an unindexed node with the given name and branch length
func NewNode(name string, length float64) *Node {
	return &Node{NAME: name, LEN: length, ID: -1}
}

//AddChild will attach n as the last child of the receiver
func (n *Node) AddChild(c *Node) {
	n.CHLD = append(n.CHLD, c)
	c.PAR = n
}

//RemoveChild will detach c from the receiver. It reports whether c was found
func (n *Node) RemoveChild(c *Node) bool {
	for i, cur := range n.CHLD {
		if cur == c {
			n.CHLD = append(n.CHLD[:i], n.CHLD[i+1:]...)
			c.PAR = nil
			return true
		}
	}
	return false
}

//IsTip reports whether the node has no children
func (n *Node) IsTip() bool {
	return len(n.CHLD) == 0
}

//PreorderArray will return a preordered array of all the nodes in a tree
func (n *Node) PreorderArray() (ret []*Node) {
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ret = append(ret, cur)
		for i := len(cur.CHLD) - 1; i >= 0; i-- {
			stack = append(stack, cur.CHLD[i])
		}
	}
	return
}

//PostorderArray will return a postordered array of all the nodes starting at n
func (n *Node) PostorderArray() (ret []*Node) {
	// reversed root-right-left order is left-right-root
	stack := []*Node{n}
	var out []*Node
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		stack = append(stack, cur.CHLD...)
	}
	for i := len(out) - 1; i >= 0; i-- {
		ret = append(ret, out[i])
	}
	return
}

//Newick will return the newick string of the subtree rooted at n, without the trailing semicolon
func (n *Node) Newick(bl bool) string {
	var buf bytes.Buffer
	n.writeNewick(&buf, bl)
	return buf.String()
}

func (n *Node) writeNewick(buf *bytes.Buffer, bl bool) {
	if len(n.CHLD) > 0 {
		buf.WriteString("(")
		for i, c := range n.CHLD {
			if i > 0 {
				buf.WriteString(",")
			}
			c.writeNewick(buf, bl)
		}
		buf.WriteString(")")
	}
	buf.WriteString(n.NAME)
	if bl && n.PAR != nil {
		buf.WriteString(":")
		buf.WriteString(strconv.FormatFloat(n.LEN, 'g', -1, 64))
	}
}
