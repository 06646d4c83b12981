package recall

import (
	"sort"
	"strings"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// SelectColumns rescales each column score by its table's score and picks
// columns round-robin across tables: round r takes the r-th best remaining
// column of every table in turn, until limit columns are chosen. Tables are
// visited in descending score order.
func SelectColumns(tables, columns []domain.RetrievedDocument, limit int) []domain.RetrievedDocument {
	type bucket struct {
		table string
		score float64
		order int
		cols  []domain.RetrievedDocument
	}

	buckets := make(map[string]*bucket)
	for i, t := range tables {
		key := strings.ToLower(t.MetaString(domain.MetaName))
		if _, ok := buckets[key]; ok || key == "" {
			continue
		}
		buckets[key] = &bucket{table: key, score: t.Score, order: i}
	}

	for _, c := range columns {
		b, ok := buckets[strings.ToLower(c.MetaString(domain.MetaTableName))]
		if !ok {
			continue
		}
		rescored := c.Clone()
		rescored.Score = c.Score * b.score
		b.cols = append(b.cols, rescored)
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		sort.SliceStable(b.cols, func(i, j int) bool {
			if b.cols[i].Score != b.cols[j].Score {
				return b.cols[i].Score > b.cols[j].Score
			}
			return b.cols[i].ID < b.cols[j].ID
		})
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score > ordered[j].score
		}
		return ordered[i].order < ordered[j].order
	})

	var out []domain.RetrievedDocument
	for round := 0; limit <= 0 || len(out) < limit; round++ {
		took := false
		for _, b := range ordered {
			if round >= len(b.cols) {
				continue
			}
			out = append(out, b.cols[round])
			took = true
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
		if !took {
			break
		}
	}
	return out
}
