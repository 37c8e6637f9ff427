package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect carries what differs between the SQL engines behind Store.
type Dialect struct {
	Name string
	// LockClause is appended to SELECTs that must hold rows until commit.
	LockClause string
	// Positional switches ? placeholders to $1, $2, ...
	Positional bool

	IsUniqueViolation     func(error) bool
	IsForeignKeyViolation func(error) bool
	// IsRetryable reports serialization conflicts worth running the
	// transaction again for.
	IsRetryable func(error) bool
}

func (d Dialect) rebind(query string) string {
	if !d.Positional {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d Dialect) lock(query string) string {
	if d.LockClause == "" {
		return query
	}
	return query + " " + d.LockClause
}

func (d Dialect) unique(err error) bool {
	return d.IsUniqueViolation != nil && d.IsUniqueViolation(err)
}

func (d Dialect) foreignKey(err error) bool {
	return d.IsForeignKeyViolation != nil && d.IsForeignKeyViolation(err)
}

func (d Dialect) retryable(err error) bool {
	return d.IsRetryable != nil && d.IsRetryable(err)
}
