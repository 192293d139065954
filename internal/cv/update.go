package cv

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

var (
	ErrUnknownPath      = errors.New("unknown field path")
	ErrIndexOutOfRange  = errors.New("section index out of range")
	ErrInvalidValue     = errors.New("invalid value for field")
	ErrMonthWithoutYear = errors.New("month requires a year")
)

// Set 将 path（点分隔，数字段为分区下标）处的值替换为 value。
//
// 当前值与新值会先做归一化比较（剥离富文本标签、去除首尾空白），相等时返回原文档与 false，
// 不触发脏标记；不等时返回新的文档实例与 true。入参 doc 永远不会被原地修改。
// 下标等于分区长度时表示在末尾追加新条目。
//
// 注意：比较基于纯文本，仅改变格式的编辑（"Ann" → "<b>Ann</b>"）视为无变化，不会被保存。
// 局部对象（如 {"title":"x"}）按补全默认值后的结果比较，重复提交同一局部对象只算一次变化。
func Set(doc Document, path string, value any) (Document, bool, error) {
	segments, err := splitPath(path)
	if err != nil {
		return doc, false, err
	}
	if segments[0] == "template" {
		return doc, false, fmt.Errorf("%w: %q (use ApplyTemplate)", ErrUnknownPath, path)
	}

	tree, err := toTree(doc)
	if err != nil {
		return doc, false, fmt.Errorf("encode document: %w", err)
	}
	candidate, err := toJSONValue(value)
	if err != nil {
		return doc, false, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	parent, key, err := locate(tree, segments, path)
	if err != nil {
		return doc, false, err
	}

	current, exists := parent.get(key)
	if !exists {
		return doc, false, fmt.Errorf("%w: %q", ErrUnknownPath, path)
	}
	if equalValues(current, candidate) {
		return doc, false, nil
	}

	if err := checkDatePolicy(parent, key, candidate); err != nil {
		return doc, false, err
	}

	parent.set(key, candidate)
	next, err := fromTree(tree)
	if err != nil {
		return doc, false, fmt.Errorf("%w %q: %v", ErrInvalidValue, path, err)
	}
	// 局部对象会被补全、空默认值会被回填，需按落地后的文档再比较一次
	same, err := sameDocument(doc, next)
	if err != nil {
		return doc, false, fmt.Errorf("encode document: %w", err)
	}
	if same {
		return doc, false, nil
	}
	return next, true, nil
}

func sameDocument(a, b Document) (bool, error) {
	ta, err := toTree(a)
	if err != nil {
		return false, err
	}
	tb, err := toTree(b)
	if err != nil {
		return false, err
	}
	return equalValues(ta, tb), nil
}

// RemoveItem 删除分区中的一个条目，返回新文档。
func RemoveItem(doc Document, section string, index int) (Document, error) {
	if _, ok := zeroItem(section); !ok {
		return doc, fmt.Errorf("%w: %q", ErrUnknownPath, section)
	}
	n := doc.SectionLen(section)
	if index < 0 || index >= n {
		return doc, fmt.Errorf("%w: %s[%d]", ErrIndexOutOfRange, section, index)
	}
	tree, err := toTree(doc)
	if err != nil {
		return doc, err
	}
	items, _ := tree[section].([]any)
	out := make([]any, 0, len(items)-1)
	out = append(out, items[:index]...)
	out = append(out, items[index+1:]...)
	tree[section] = out
	return fromTree(tree)
}

// MoveItem moves an entry within a section, shifting the ones in between.
func MoveItem(doc Document, section string, from, to int) (Document, error) {
	if _, ok := zeroItem(section); !ok {
		return doc, fmt.Errorf("%w: %q", ErrUnknownPath, section)
	}
	n := doc.SectionLen(section)
	if from < 0 || from >= n || to < 0 || to >= n {
		return doc, fmt.Errorf("%w: %s[%d -> %d]", ErrIndexOutOfRange, section, from, to)
	}
	if from == to {
		return doc, nil
	}
	tree, err := toTree(doc)
	if err != nil {
		return doc, err
	}
	items, _ := tree[section].([]any)
	item := items[from]
	rest := make([]any, 0, len(items))
	rest = append(rest, items[:from]...)
	rest = append(rest, items[from+1:]...)
	out := make([]any, 0, len(items))
	out = append(out, rest[:to]...)
	out = append(out, item)
	out = append(out, rest[to:]...)
	tree[section] = out
	return fromTree(tree)
}

func splitPath(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrUnknownPath)
	}
	segments := strings.Split(path, ".")
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPath, path)
		}
	}
	return segments, nil
}

// container 抽象 map 与 slice 两种父节点。
type container struct {
	obj   map[string]any
	arr   []any
	owner func([]any) // slice 追加后回写到上一层
}

func (c container) get(key string) (any, bool) {
	if c.obj != nil {
		v, ok := c.obj[key]
		return v, ok
	}
	idx, err := strconv.Atoi(key)
	if err != nil || idx < 0 || idx >= len(c.arr) {
		return nil, false
	}
	return c.arr[idx], true
}

func (c container) set(key string, value any) {
	if c.obj != nil {
		c.obj[key] = value
		return
	}
	idx, _ := strconv.Atoi(key)
	c.arr[idx] = value
}

// locate 沿路径向下走到最后一段的父节点；遇到等于长度的下标时追加零值条目。
func locate(tree map[string]any, segments []string, path string) (container, string, error) {
	cur := container{obj: tree}
	section := ""
	for i, seg := range segments[:len(segments)-1] {
		if i == 0 {
			section = seg
		}
		next, err := descend(cur, seg, section, path)
		if err != nil {
			return container{}, "", err
		}
		cur = next
	}

	last := segments[len(segments)-1]
	if cur.arr != nil {
		idx, err := strconv.Atoi(last)
		if err != nil {
			return container{}, "", fmt.Errorf("%w: %q", ErrUnknownPath, path)
		}
		if idx == len(cur.arr) && len(segments) == 2 {
			item, ok := zeroItem(segments[0])
			if !ok {
				return container{}, "", fmt.Errorf("%w: %q", ErrUnknownPath, path)
			}
			zero, err := toJSONValue(item)
			if err != nil {
				return container{}, "", err
			}
			cur.arr = append(cur.arr, zero)
			cur.owner(cur.arr)
		}
		if idx < 0 || idx >= len(cur.arr) {
			return container{}, "", fmt.Errorf("%w: %q", ErrIndexOutOfRange, path)
		}
	}
	return cur, last, nil
}

func descend(cur container, seg, section, path string) (container, error) {
	if cur.obj != nil {
		child, ok := cur.obj[seg]
		if !ok {
			return container{}, fmt.Errorf("%w: %q", ErrUnknownPath, path)
		}
		switch v := child.(type) {
		case map[string]any:
			return container{obj: v}, nil
		case []any:
			obj := cur.obj
			return container{arr: v, owner: func(updated []any) { obj[seg] = updated }}, nil
		default:
			return container{}, fmt.Errorf("%w: %q", ErrUnknownPath, path)
		}
	}

	idx, err := strconv.Atoi(seg)
	if err != nil {
		return container{}, fmt.Errorf("%w: %q", ErrUnknownPath, path)
	}
	if idx == len(cur.arr) {
		item, ok := zeroItem(section)
		if !ok {
			return container{}, fmt.Errorf("%w: %q", ErrUnknownPath, path)
		}
		zero, err := toJSONValue(item)
		if err != nil {
			return container{}, err
		}
		cur.arr = append(cur.arr, zero)
		cur.owner(cur.arr)
	}
	if idx < 0 || idx >= len(cur.arr) {
		return container{}, fmt.Errorf("%w: %q", ErrIndexOutOfRange, path)
	}
	child, ok := cur.arr[idx].(map[string]any)
	if !ok {
		zero, _ := zeroItem(section)
		v, err := toJSONValue(zero)
		if err != nil {
			return container{}, err
		}
		child, _ = v.(map[string]any)
		if child == nil {
			return container{}, fmt.Errorf("%w: %q", ErrUnknownPath, path)
		}
		cur.arr[idx] = child
	}
	return container{obj: child}, nil
}

// checkDatePolicy: 月份必须在年份之后设置；清空年份时同步清空月份。
func checkDatePolicy(parent container, key string, candidate any) error {
	if date, ok := candidate.(map[string]any); ok && isYearMonth(date) {
		if asNumber(date["month"]) != 0 && asNumber(date["year"]) == 0 {
			return ErrMonthWithoutYear
		}
	}
	if parent.obj == nil || !isYearMonth(parent.obj) {
		return nil
	}
	switch key {
	case "month":
		month := asNumber(candidate)
		if month == 0 {
			return nil
		}
		if month < 1 || month > 12 || month != float64(int(month)) {
			return fmt.Errorf("%w: month %v", ErrInvalidValue, candidate)
		}
		if asNumber(parent.obj["year"]) == 0 {
			return ErrMonthWithoutYear
		}
	case "year":
		year := asNumber(candidate)
		if year < 0 || year != float64(int(year)) {
			return fmt.Errorf("%w: year %v", ErrInvalidValue, candidate)
		}
		if year == 0 {
			parent.obj["month"] = float64(0)
		}
	}
	return nil
}

func isYearMonth(m map[string]any) bool {
	_, hasYear := m["year"]
	_, hasMonth := m["month"]
	return hasYear && hasMonth && len(m) == 2
}

func asNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case nil:
		return 0
	default:
		return -1
	}
}

func toJSONValue(v any) (any, error) {
	if raw, ok := v.(json.RawMessage); ok {
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromTree(tree map[string]any) (Document, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, err
	}
	fillDefaults(&doc)
	return doc, nil
}

// equalValues 比较两个 JSON 值：字符串按纯文本比较，nil 视同空字符串。
func equalValues(a, b any) bool {
	return reflect.DeepEqual(canonical(a), canonical(b))
}

func canonical(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return PlainText(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = canonical(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = canonical(child)
		}
		return out
	default:
		return val
	}
}
