package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// Filter is a mongo-shaped query document.
//
// Field keys may be dotted paths into nested documents. A field value is
// either a literal (equality, or membership when the field holds an array)
// or an operator document using $eq, $ne, $in, $nin, $exists, $regex
// (with $options), $gt, $gte, $lt, $lte and $not. The top level also accepts
// $and, $or and $nor with arrays of filters.
//
// Backends that speak this dialect natively pass filters through; embedded
// backends evaluate them with Match.
type Filter map[string]any

// And combines filters into one. Nil and empty filters are dropped.
func And(filters ...Filter) Filter {
	var parts []any
	for _, f := range filters {
		if len(f) > 0 {
			parts = append(parts, f)
		}
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0].(Filter)
	default:
		return Filter{"$and": parts}
	}
}

// Match evaluates f against doc. An empty filter matches everything.
func Match(doc map[string]any, f Filter) (bool, error) {
	for key, cond := range f {
		ok, err := matchClause(doc, key, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchClause(doc map[string]any, key string, cond any) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		subs, err := subFilters(key, cond)
		if err != nil {
			return false, err
		}
		return matchLogical(doc, key, subs)
	}
	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("unknown top-level operator %s", key)
	}

	value, present := lookup(doc, key)
	if ops, ok := operatorDoc(cond); ok {
		return matchOperators(value, present, ops)
	}
	return equals(value, present, cond), nil
}

func matchLogical(doc map[string]any, op string, subs []Filter) (bool, error) {
	for _, sub := range subs {
		ok, err := Match(doc, sub)
		if err != nil {
			return false, err
		}
		switch {
		case op == "$and" && !ok:
			return false, nil
		case op == "$or" && ok:
			return true, nil
		case op == "$nor" && ok:
			return false, nil
		}
	}
	return op != "$or", nil
}

func subFilters(op string, v any) ([]Filter, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%s expects an array", op)
	}
	out := make([]Filter, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		m, ok := asMap(rv.Index(i).Interface())
		if !ok {
			return nil, fmt.Errorf("%s element %d is not a document", op, i)
		}
		out = append(out, Filter(m))
	}
	return out, nil
}

// operatorDoc reports whether v is a document made only of $-operators.
func operatorDoc(v any) (map[string]any, bool) {
	m, ok := asMap(v)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchOperators(value any, present bool, ops map[string]any) (bool, error) {
	for op, arg := range ops {
		var ok bool
		var err error
		switch op {
		case "$eq":
			ok = equals(value, present, arg)
		case "$ne":
			ok = !equals(value, present, arg)
		case "$in":
			ok, err = in(value, present, arg)
		case "$nin":
			ok, err = in(value, present, arg)
			ok = !ok
		case "$exists":
			want, isBool := arg.(bool)
			if !isBool {
				return false, fmt.Errorf("$exists expects a boolean")
			}
			ok = present == want
		case "$regex":
			ok, err = matchRegex(value, present, arg, ops["$options"])
		case "$options":
			ok = true
		case "$gt", "$gte", "$lt", "$lte":
			ok = present && compareOp(op, value, arg)
		case "$not":
			sub, isDoc := operatorDoc(arg)
			if !isDoc {
				return false, fmt.Errorf("$not expects an operator document")
			}
			ok, err = matchOperators(value, present, sub)
			ok = !ok
		default:
			return false, fmt.Errorf("unknown operator %s", op)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func in(value any, present bool, arg any) (bool, error) {
	rv := reflect.ValueOf(arg)
	if rv.Kind() != reflect.Slice {
		return false, fmt.Errorf("$in expects an array")
	}
	for i := 0; i < rv.Len(); i++ {
		if equals(value, present, rv.Index(i).Interface()) {
			return true, nil
		}
	}
	return false, nil
}

var regexCache sync.Map

func compileRegex(pattern string, options string) (*regexp2.Regexp, error) {
	key := options + "/" + pattern
	if re, ok := regexCache.Load(key); ok {
		return re.(*regexp2.Regexp), nil
	}
	var opts regexp2.RegexOptions
	for _, c := range options {
		switch c {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'x':
			opts |= regexp2.IgnorePatternWhitespace
		}
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, fmt.Errorf("invalid $regex %q: %w", pattern, err)
	}
	regexCache.Store(key, re)
	return re, nil
}

func matchRegex(value any, present bool, arg any, options any) (bool, error) {
	if !present {
		return false, nil
	}
	pattern, ok := arg.(string)
	if !ok {
		return false, fmt.Errorf("$regex expects a string")
	}
	optStr, _ := options.(string)
	re, err := compileRegex(pattern, optStr)
	if err != nil {
		return false, err
	}
	for _, v := range candidates(value) {
		s, isStr := v.(string)
		if !isStr {
			continue
		}
		if m, _ := re.MatchString(s); m {
			return true, nil
		}
	}
	return false, nil
}

// candidates expands array values so that operators match any element.
func candidates(value any) []any {
	if isArray(value) {
		rv := reflect.ValueOf(value)
		out := make([]any, 0, rv.Len()+1)
		for i := 0; i < rv.Len(); i++ {
			out = append(out, rv.Index(i).Interface())
		}
		return append(out, value)
	}
	return []any{value}
}

func isArray(value any) bool {
	if value == nil {
		return false
	}
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8
}

func equals(value any, present bool, want any) bool {
	if !present {
		return want == nil
	}
	for _, v := range candidates(value) {
		if valuesEqual(v, want) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if ma, ok := asMap(a); ok {
		mb, ok := asMap(b)
		if !ok || len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, ok := mb[k]
			if !ok || !valuesEqual(va, vb) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func compareOp(op string, value any, arg any) bool {
	for _, v := range candidates(value) {
		c, ok := compare(v, arg)
		if !ok {
			continue
		}
		switch op {
		case "$gt":
			if c > 0 {
				return true
			}
		case "$gte":
			if c >= 0 {
				return true
			}
		case "$lt":
			if c < 0 {
				return true
			}
		case "$lte":
			if c <= 0 {
				return true
			}
		}
	}
	return false
}

// compare orders two values of compatible kinds.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Filter:
		return m, true
	case Meta:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}

// lookup resolves a dotted path in doc.
func lookup(doc map[string]any, key string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(key, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Lookup resolves a dotted path in a metadata document.
func (m Meta) Lookup(key string) (any, bool) {
	return lookup(m, key)
}

// Distinct collects the distinct values of key across docs. Array values
// contribute their elements.
func Distinct(docs []Meta, key string) []any {
	var out []any
	add := func(v any) {
		for _, seen := range out {
			if valuesEqual(seen, v) {
				return
			}
		}
		out = append(out, v)
	}
	for _, doc := range docs {
		v, ok := doc.Lookup(key)
		if !ok {
			continue
		}
		vals := candidates(v)
		if isArray(v) {
			vals = vals[:len(vals)-1]
		}
		for _, e := range vals {
			add(e)
		}
	}
	return out
}

// Validate checks the operators of f without evaluating it. Backends that
// pass filters through use it to report malformed queries as
// ErrInvalidArgument before they reach the server.
func (f Filter) Validate() error {
	for key, cond := range f {
		switch key {
		case "$and", "$or", "$nor":
			subs, err := subFilters(key, cond)
			if err != nil {
				return NewInvalidArgumentError("", err.Error())
			}
			for _, sub := range subs {
				if err := sub.Validate(); err != nil {
					return err
				}
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			return NewInvalidArgumentError("", fmt.Sprintf("unknown top-level operator %s", key))
		}
		ops, ok := operatorDoc(cond)
		if !ok {
			continue
		}
		if err := validateOperators(ops); err != nil {
			return NewInvalidArgumentError("", err.Error())
		}
	}
	return nil
}

func validateOperators(ops map[string]any) error {
	for op, arg := range ops {
		switch op {
		case "$eq", "$ne", "$options", "$gt", "$gte", "$lt", "$lte":
		case "$in", "$nin":
			if reflect.ValueOf(arg).Kind() != reflect.Slice {
				return fmt.Errorf("%s expects an array", op)
			}
		case "$exists":
			if _, ok := arg.(bool); !ok {
				return fmt.Errorf("$exists expects a boolean")
			}
		case "$regex":
			pattern, ok := arg.(string)
			if !ok {
				return fmt.Errorf("$regex expects a string")
			}
			optStr, _ := ops["$options"].(string)
			if _, err := compileRegex(pattern, optStr); err != nil {
				return err
			}
		case "$not":
			sub, ok := operatorDoc(arg)
			if !ok {
				return fmt.Errorf("$not expects an operator document")
			}
			if err := validateOperators(sub); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown operator %s", op)
		}
	}
	return nil
}

// Keys returns the filter's top-level keys in sorted order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
