package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/metrics"
	"github.com/maxsync/max/pkg/types"
)

const defaultPageSize = 100

// Query runs a filtered, ordered, paged query over one entity type. The
// where tree is evaluated in-process over the stored field maps; ordering
// is stable so offset cursors round-trip.
func (e *BoltEngine) Query(ctx context.Context, query types.Query) (types.EntityPage, error) {
	metrics.EngineQueriesTotal.Inc()

	def, ok := e.schema.Entity(query.Type)
	if !ok {
		return types.EntityPage{}, errdefs.ErrUnknownEntityType.New(errdefs.Props{"entityType": string(query.Type)})
	}
	if err := validateWhere(query.Where); err != nil {
		return types.EntityPage{}, err
	}

	// collect all matches, then order and page; stored order (key order)
	// is the stable tiebreak
	var matched []types.EntityResult
	var stores []map[string]any

	cursor := ""
	for {
		page, err := e.LoadPage(ctx, query.Type, types.ProjectRefs(), types.PageRequest{Cursor: cursor, Limit: defaultPageSize})
		if err != nil {
			return types.EntityPage{}, err
		}
		for _, entity := range page.Entities {
			stored, err := e.loadFields(entity.Ref)
			if err != nil {
				return types.EntityPage{}, err
			}
			ok, err := evalWhere(query.Where, stored)
			if err != nil {
				return types.EntityPage{}, err
			}
			if ok {
				matched = append(matched, types.EntityResult{Ref: entity.Ref})
				stores = append(stores, stored)
			}
		}
		if !page.HasMore {
			break
		}
		cursor = page.Cursor
	}

	order := append([]types.OrderBy(nil), query.Order...)
	if len(order) > 0 {
		indices := make([]int, len(matched))
		for i := range indices {
			indices[i] = i
		}
		sort.SliceStable(indices, func(a, b int) bool {
			return lessByOrder(stores[indices[a]], stores[indices[b]], order)
		})
		reorderedMatched := make([]types.EntityResult, len(matched))
		reorderedStores := make([]map[string]any, len(stores))
		for pos, idx := range indices {
			reorderedMatched[pos] = matched[idx]
			reorderedStores[pos] = stores[idx]
		}
		matched, stores = reorderedMatched, reorderedStores
	}

	offset, err := decodeCursor(query.Page.Cursor)
	if err != nil {
		return types.EntityPage{}, err
	}
	limit := query.Page.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	if offset > len(matched) {
		offset = len(matched)
	}

	result := types.EntityPage{HasMore: end < len(matched)}
	for i := offset; i < end; i++ {
		result.Entities = append(result.Entities, projectEntity(matched[i].Ref, def, stores[i], query.Projection))
	}
	if result.HasMore {
		result.Cursor = encodeCursor(end)
	}
	return result, nil
}

func validateWhere(clause *types.WhereClause) error {
	if clause == nil {
		return nil
	}
	if clause.Kind == "and" || clause.Kind == "or" {
		for _, child := range clause.Clauses {
			if err := validateWhere(child); err != nil {
				return err
			}
		}
		return nil
	}
	if clause.Kind != "" {
		return errdefs.ErrInvalidQuery.New(errdefs.Props{"detail": fmt.Sprintf("unknown clause kind %q", clause.Kind)})
	}
	switch clause.Op {
	case types.OpEq, types.OpNe, types.OpGt, types.OpGte, types.OpLt, types.OpLte, types.OpContains:
		return nil
	default:
		return errdefs.ErrUnknownOperator.New(errdefs.Props{"op": string(clause.Op)})
	}
}

func evalWhere(clause *types.WhereClause, fields map[string]any) (bool, error) {
	if clause == nil {
		return true, nil
	}
	switch clause.Kind {
	case "and":
		for _, child := range clause.Clauses {
			ok, err := evalWhere(child, fields)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case "or":
		for _, child := range clause.Clauses {
			ok, err := evalWhere(child, fields)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return evalLeaf(clause, fields[clause.Field])
}

func evalLeaf(clause *types.WhereClause, value any) (bool, error) {
	switch clause.Op {
	case types.OpEq:
		return compare(value, clause.Value) == 0, nil
	case types.OpNe:
		return compare(value, clause.Value) != 0, nil
	case types.OpGt:
		return compare(value, clause.Value) > 0, nil
	case types.OpGte:
		return compare(value, clause.Value) >= 0, nil
	case types.OpLt:
		return compare(value, clause.Value) < 0, nil
	case types.OpLte:
		return compare(value, clause.Value) <= 0, nil
	case types.OpContains:
		return contains(value, clause.Value), nil
	default:
		return false, errdefs.ErrUnknownOperator.New(errdefs.Props{"op": string(clause.Op)})
	}
}

// compare orders two JSON-decoded values: numbers numerically, booleans
// false<true, everything else lexically by string form.
func compare(a, b any) int {
	na, aok := toFloat(a)
	nb, bok := toFloat(b)
	if aok && bok {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func contains(value, needle any) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, fmt.Sprintf("%v", needle))
	case []any:
		for _, item := range v {
			if compare(item, needle) == 0 {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == fmt.Sprintf("%v", needle) {
				return true
			}
		}
	}
	return false
}

func lessByOrder(a, b map[string]any, order []types.OrderBy) bool {
	for _, ord := range order {
		c := compare(a[ord.Field], b[ord.Field])
		if c == 0 {
			continue
		}
		if ord.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

// Cursors encode a position as base64("o:<offset>") so malformed cursors
// are distinguishable from stale ones.
func encodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte("o:" + strconv.Itoa(offset)))
}

func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, errdefs.ErrInvalidCursor.New(errdefs.Props{"cursor": cursor})
	}
	value, ok := strings.CutPrefix(string(raw), "o:")
	if !ok {
		return 0, errdefs.ErrInvalidCursor.New(errdefs.Props{"cursor": cursor})
	}
	offset, err := strconv.Atoi(value)
	if err != nil || offset < 0 {
		return 0, errdefs.ErrInvalidCursor.New(errdefs.Props{"cursor": cursor})
	}
	return offset, nil
}
