package search

import (
	"strconv"
	"strings"
)

// Query is a parsed search input. Plain words are matched against message
// content; flags narrow the result set.
//
//	dijkstra heap --from alice --lang en --limit 5
type Query struct {
	Raw      string
	Terms    string
	Sender   string
	Language string
	Limit    int
}

// Parse splits a raw input into terms and flags. Unknown flags and flags
// without a value are treated as terms.
func Parse(input string) Query {
	query := Query{Raw: input}

	parts := strings.Fields(input)
	var terms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			val := parts[i+1]
			switch strings.TrimPrefix(part, "--") {
			case "from":
				query.Sender = strings.TrimPrefix(val, "@")
			case "lang":
				query.Language = strings.ToLower(val)
			case "limit":
				if n, err := strconv.Atoi(val); err == nil && n > 0 {
					query.Limit = n
				}
			default:
				terms = append(terms, part)
				continue
			}
			i++
			continue
		}
		terms = append(terms, part)
	}

	query.Terms = strings.ToLower(strings.Join(terms, " "))
	return query
}

// Empty reports whether the query carries nothing to match on.
func (q Query) Empty() bool {
	return q.Terms == "" && q.Sender == ""
}
