package aggregates

import "strings"

// Contract names an aggregate and the tables it alone may mutate.
type Contract struct {
	Name string
	// Tables written only through this aggregate.
	Tables []string
	// LockOrder is the first row lock every write takes.
	LockOrder string
	Notes     string
}

// Aggregate is implemented by every write boundary.
type Aggregate interface {
	Contract() Contract
}

// Owns reports whether table is written exclusively by the aggregate.
func (c Contract) Owns(table string) bool {
	table = strings.TrimSpace(table)
	for _, t := range c.Tables {
		if t == table {
			return true
		}
	}
	return false
}
