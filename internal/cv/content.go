package cv

import (
	"encoding/json"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// 富文本编辑器会把空内容序列化为 <p><br></p>，比较前统一剥离标签。
var stripPolicy = bluemonday.StrictPolicy()

// PlainText strips markup and entities from s and trims surrounding whitespace.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	text := stripPolicy.Sanitize(s)
	text = html.UnescapeString(text)
	text = strings.ReplaceAll(text, "\u00a0", " ")
	return strings.TrimSpace(text)
}

// HasContent 判断文档是否包含实质内容：任一个人信息字段或任一分区条目含非空文本。
// 模板、样式与 GDPR 声明不计入。
func HasContent(doc Document) bool {
	tree, err := toTree(doc)
	if err != nil {
		return false
	}
	if hasText(tree["personal"]) {
		return true
	}
	for _, section := range Sections {
		if hasText(tree[section]) {
			return true
		}
	}
	return false
}

func hasText(v any) bool {
	switch val := v.(type) {
	case string:
		return PlainText(val) != ""
	case map[string]any:
		for _, child := range val {
			if hasText(child) {
				return true
			}
		}
	case []any:
		for _, child := range val {
			if hasText(child) {
				return true
			}
		}
	}
	return false
}

// PersonalChanged reports whether the personal profile differs between a and b
// once markup is ignored.
func PersonalChanged(a, b Document) bool {
	ta, errA := toTree(a.Personal)
	tb, errB := toTree(b.Personal)
	if errA != nil || errB != nil {
		return true
	}
	for key, va := range ta {
		if !equalValues(va, tb[key]) {
			return true
		}
	}
	return false
}

func toTree(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}
