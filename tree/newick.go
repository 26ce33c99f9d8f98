package tree

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type newickReader struct {
	s   string
	pos int
}

//ReadTree will parse a newick string into a rooted node structure
func ReadTree(nwk string) (*Node, error) {
	r := &newickReader{s: strings.TrimSpace(nwk)}
	root, err := r.subtree()
	if err != nil {
		return nil, err
	}
	r.skip()
	if r.pos < len(r.s) && r.s[r.pos] == ';' {
		r.pos++
	}
	r.skip()
	if r.pos != len(r.s) {
		return nil, fmt.Errorf("%w: trailing input at offset %d", ErrNewick, r.pos)
	}
	return root, nil
}

//ReadNewickFile will read the first tree of a newick file
func ReadNewickFile(path string) (*Node, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for _, ln := range strings.Split(string(b), "\n") {
		if strings.TrimSpace(ln) != "" {
			return ReadTree(ln)
		}
	}
	return nil, fmt.Errorf("%w: no tree in %s", ErrNewick, path)
}

func (r *newickReader) skip() {
	for r.pos < len(r.s) {
		switch r.s[r.pos] {
		case ' ', '\t', '\n', '\r':
			r.pos++
		case '[':
			end := strings.IndexByte(r.s[r.pos:], ']')
			if end < 0 {
				r.pos = len(r.s)
				return
			}
			r.pos += end + 1
		default:
			return
		}
	}
}

func (r *newickReader) subtree() (*Node, error) {
	r.skip()
	n := NewNode("", 0)
	if r.pos < len(r.s) && r.s[r.pos] == '(' {
		r.pos++
		for {
			c, err := r.subtree()
			if err != nil {
				return nil, err
			}
			n.AddChild(c)
			r.skip()
			if r.pos >= len(r.s) {
				return nil, fmt.Errorf("%w: unbalanced parentheses", ErrNewick)
			}
			if r.s[r.pos] == ',' {
				r.pos++
				continue
			}
			if r.s[r.pos] == ')' {
				r.pos++
				break
			}
			return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrNewick, r.s[r.pos], r.pos)
		}
	}
	r.skip()
	n.NAME = r.token()
	r.skip()
	if r.pos < len(r.s) && r.s[r.pos] == ':' {
		r.pos++
		r.skip()
		lit := r.token()
		l, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad branch length %q", ErrNewick, lit)
		}
		n.LEN = l
	}
	return n, nil
}

func (r *newickReader) token() string {
	start := r.pos
	for r.pos < len(r.s) {
		switch r.s[r.pos] {
		case '(', ')', ',', ':', ';', '[', ' ', '\t', '\n', '\r':
			return r.s[start:r.pos]
		}
		r.pos++
	}
	return r.s[start:r.pos]
}
