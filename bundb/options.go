package bundb

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Options is the query description accepted by model methods. Callers may
// pass Options, *Options, a map with the same JSON shape, or nil.
//
// Where maps column names to values: slices become IN lists and nil becomes
// IS NULL. Order entries are column names, optionally prefixed with "-" or
// suffixed with " desc" for descending order. Field names the column of
// min, max and sum. Criteria are applied after the declarative parts.
type Options struct {
	Where     map[string]any              `json:"where,omitempty"`
	Order     []string                    `json:"order,omitempty"`
	Limit     int                         `json:"limit,omitempty"`
	Offset    int                         `json:"offset,omitempty"`
	Field     string                      `json:"field,omitempty"`
	Relations []string                    `json:"relations,omitempty"`
	Criteria  []repository.SelectCriteria `json:"criteria,omitempty"`
}

// ParseOptions converts a model method options value into Options.
func ParseOptions(v any) (Options, error) {
	switch o := v.(type) {
	case nil:
		return Options{}, nil
	case Options:
		return o, nil
	case *Options:
		if o == nil {
			return Options{}, nil
		}
		return *o, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	var opts Options
	if err := json.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return opts, nil
}

// selectCriteria renders the options as repository criteria. Aggregates skip
// ordering and paging.
func (o Options) selectCriteria(aggregate bool) []repository.SelectCriteria {
	var criteria []repository.SelectCriteria

	if len(o.Where) > 0 {
		columns := make([]string, 0, len(o.Where))
		for column := range o.Where {
			columns = append(columns, column)
		}
		sort.Strings(columns)

		for _, column := range columns {
			criteria = append(criteria, whereCriteria(column, o.Where[column]))
		}
	}

	if !aggregate {
		for _, rel := range o.Relations {
			rel := rel
			criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Relation(rel)
			})
		}

		for _, order := range o.Order {
			column, desc := parseOrder(order)
			if column == "" {
				continue
			}
			criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
				if desc {
					return q.OrderExpr("? DESC", bun.Ident(column))
				}
				return q.OrderExpr("? ASC", bun.Ident(column))
			})
		}

		// The repository pages List by default; a zero limit clears it.
		limit := max(o.Limit, 0)
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Limit(limit)
		})

		if o.Offset > 0 {
			offset := o.Offset
			criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Offset(offset)
			})
		}
	}

	return append(criteria, o.Criteria...)
}

func whereCriteria(column string, value any) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		switch v := value.(type) {
		case nil:
			return q.Where("? IS NULL", bun.Ident(column))
		case []any:
			return q.Where("? IN (?)", bun.Ident(column), bun.In(v))
		case []string:
			return q.Where("? IN (?)", bun.Ident(column), bun.In(v))
		case []int:
			return q.Where("? IN (?)", bun.Ident(column), bun.In(v))
		default:
			return q.Where("? = ?", bun.Ident(column), v)
		}
	}
}

func parseOrder(order string) (string, bool) {
	order = strings.TrimSpace(order)
	if strings.HasPrefix(order, "-") {
		return strings.TrimSpace(order[1:]), true
	}

	column, dir, found := strings.Cut(order, " ")
	if !found {
		return column, false
	}
	return column, strings.EqualFold(strings.TrimSpace(dir), "desc")
}
