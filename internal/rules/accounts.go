package rules

import (
	"bufio"
	"bytes"
	"regexp"
	"sort"
	"strings"
)

var (
	racc      = regexp.MustCompile(`^account[\W]+(.*)`)
	ralias    = regexp.MustCompile(`^alias\s+(\S+)\s*=\s*(.+)$`)
	rsubalias = regexp.MustCompile(`^\s+alias\s+(\S+)\s*$`)
	rcomment  = regexp.MustCompile(`^\s+;(.*)`)
)

// Account is a declared account with its aliases and description comments.
type Account struct {
	Name    string
	Aliases []string
	Comment string
}

// Catalog holds the declarations of accounts.journal. It is used for listing
// and validation only; resolution never depends on it.
type Catalog struct {
	Accounts []Account
	index    map[string]int
}

// ParseCatalog reads `account <name>` and `alias <name> = <account>` lines.
// Indented comments directly under an account become its description.
func ParseCatalog(data []byte) *Catalog {
	c := &Catalog{index: make(map[string]int)}
	s := bufio.NewScanner(bytes.NewReader(data))
	current := -1
	var comments []string
	flush := func() {
		if current >= 0 && len(comments) > 0 {
			c.Accounts[current].Comment = strings.Join(comments, " ")
		}
		comments = nil
	}
	for s.Scan() {
		line := s.Text()
		if m := racc.FindStringSubmatch(line); len(m) >= 2 {
			flush()
			name := strings.TrimSpace(m[1])
			if name == "" {
				current = -1
				continue
			}
			current = c.add(name)
			continue
		}
		if m := ralias.FindStringSubmatch(strings.TrimSpace(line)); len(m) == 3 && !rcomment.MatchString(line) {
			flush()
			current = -1
			target := strings.TrimSpace(m[2])
			idx := c.add(target)
			c.Accounts[idx].Aliases = append(c.Accounts[idx].Aliases, m[1])
			continue
		}
		if current >= 0 {
			if m := rsubalias.FindStringSubmatch(line); len(m) == 2 {
				c.Accounts[current].Aliases = append(c.Accounts[current].Aliases, m[1])
				continue
			}
			if m := rcomment.FindStringSubmatch(line); len(m) >= 2 {
				if cm := strings.TrimSpace(m[1]); cm != "" {
					comments = append(comments, cm)
				}
				continue
			}
			if strings.TrimSpace(line) == "" {
				flush()
				current = -1
			}
		}
	}
	flush()
	return c
}

func (c *Catalog) add(name string) int {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if idx, ok := c.index[name]; ok {
		return idx
	}
	c.Accounts = append(c.Accounts, Account{Name: name})
	c.index[name] = len(c.Accounts) - 1
	return len(c.Accounts) - 1
}

// Has reports whether name is declared, directly or through an alias.
func (c *Catalog) Has(name string) bool {
	_, ok := c.Canonical(name)
	return ok
}

// Canonical resolves an alias to its account name.
func (c *Catalog) Canonical(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	if _, ok := c.index[name]; ok {
		return name, true
	}
	for _, a := range c.Accounts {
		for _, al := range a.Aliases {
			if al == name {
				return a.Name, true
			}
		}
	}
	return "", false
}

// Names returns the declared account names, sorted.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		out = append(out, a.Name)
	}
	sort.Strings(out)
	return out
}

// Len is the number of declared accounts.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Accounts)
}
