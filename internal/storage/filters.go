package storage

import (
	"strconv"
	"strings"
)

// filterClauses renders f as SQL predicates over the aliases co (courses)
// and l (lectures). bind appends an argument and returns its placeholder,
// which lets both the "?" and "$n" dialects share the builder.
func filterClauses(f Filters, bind func(arg any) string) []string {
	var clauses []string

	if len(f.CourseIDs) > 0 {
		ph := make([]string, len(f.CourseIDs))
		for i, id := range f.CourseIDs {
			ph[i] = bind(id)
		}
		clauses = append(clauses, "co.id IN ("+strings.Join(ph, ", ")+")")
	}
	if f.Category != "" {
		clauses = append(clauses, "l.category = "+bind(f.Category))
	}
	if f.DateFrom != nil {
		clauses = append(clauses, "l.published_at >= "+bind(f.DateFrom.UTC()))
	}
	if f.DateTo != nil {
		clauses = append(clauses, "l.published_at <= "+bind(f.DateTo.UTC()))
	}

	return clauses
}

// sqliteArgs collects positional arguments for "?" placeholders.
type sqliteArgs []any

func (a *sqliteArgs) bind(arg any) string {
	*a = append(*a, arg)
	return "?"
}

// pgArgs collects positional arguments for "$n" placeholders.
type pgArgs []any

func (a *pgArgs) bind(arg any) string {
	*a = append(*a, arg)
	return "$" + strconv.Itoa(len(*a))
}

func whereClause(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " AND " + strings.Join(clauses, " AND ")
}
