package catalog

import "strings"

// Category 表示模板的收费类别。
type Category string

const (
	CategoryFree       Category = "free"
	CategoryRestricted Category = "restricted"
)

// DefaultKey 是未指定或无法识别模板时使用的模板。
const DefaultKey = "classic"

// Template 描述一个可选的简历模板（参考数据，只读）。
type Template struct {
	Key           string   `json:"key"`
	Name          string   `json:"name"`
	Category      Category `json:"category"`
	PriceCents    int64    `json:"price_cents"`
	Currency      string   `json:"currency"`
	DefaultAccent string   `json:"default_accent"`
}

// Restricted reports whether exporting this template requires an entitlement.
func (t Template) Restricted() bool {
	return t.Category == CategoryRestricted
}

var templates = []Template{
	{Key: "classic", Name: "Classic", Category: CategoryFree, Currency: "eur", DefaultAccent: "#1f3a5f"},
	{Key: "modern", Name: "Modern", Category: CategoryFree, Currency: "eur", DefaultAccent: "#3388ff"},
	{Key: "compact", Name: "Compact", Category: CategoryFree, Currency: "eur", DefaultAccent: "#2f855a"},
	{Key: "executive", Name: "Executive", Category: CategoryRestricted, PriceCents: 499, Currency: "eur", DefaultAccent: "#7a1f2b"},
	{Key: "creative", Name: "Creative", Category: CategoryRestricted, PriceCents: 499, Currency: "eur", DefaultAccent: "#c05621"},
}

// All 返回模板目录的副本，调用方修改不会影响注册表。
func All() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// Lookup 按 key 查找模板。
func Lookup(key string) (Template, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, t := range templates {
		if t.Key == key {
			return t, true
		}
	}
	return Template{}, false
}

// Default 返回默认模板。
func Default() Template {
	t, _ := Lookup(DefaultKey)
	return t
}

// Resolve returns the template for key, falling back to the default one.
func Resolve(key string) Template {
	if t, ok := Lookup(key); ok {
		return t
	}
	return Default()
}
