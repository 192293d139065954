package cv

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cvStudio/internal/catalog"
)

const (
	DefaultFontFamily  = "Inter"
	DefaultLineSpacing = 1.5
)

var ErrUnknownTemplate = errors.New("unknown template")

// Normalize 将数据库中可能不完整的 JSON 还原为完整的 Document。
// templateOverride 非空时优先于持久化的模板（例如“从模板创建”）。
func Normalize(raw []byte, templateOverride string) (Document, error) {
	var doc Document
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return Document{}, fmt.Errorf("decode document: %w", err)
		}
	}

	if strings.TrimSpace(templateOverride) != "" {
		doc.Template = templateOverride
	}
	fillDefaults(&doc)
	return doc, nil
}

// Empty returns a normalized document with no content for the given template.
func Empty(templateKey string) Document {
	doc := Document{Template: templateKey}
	fillDefaults(&doc)
	return doc
}

func fillDefaults(doc *Document) {
	tpl := catalog.Resolve(doc.Template)
	doc.Template = tpl.Key

	if doc.Experience == nil {
		doc.Experience = []Experience{}
	}
	if doc.Education == nil {
		doc.Education = []Education{}
	}
	if doc.Skills == nil {
		doc.Skills = []Skill{}
	}
	if doc.Languages == nil {
		doc.Languages = []Language{}
	}
	if doc.Projects == nil {
		doc.Projects = []Project{}
	}
	if doc.Volunteering == nil {
		doc.Volunteering = []Volunteering{}
	}
	if doc.Courses == nil {
		doc.Courses = []Course{}
	}
	if doc.Military == nil {
		doc.Military = []Military{}
	}
	if doc.References == nil {
		doc.References = []Reference{}
	}
	if doc.Hobbies == nil {
		doc.Hobbies = []Hobby{}
	}
	if doc.Links == nil {
		doc.Links = []Link{}
	}

	if strings.TrimSpace(doc.Style.AccentColor) == "" {
		doc.Style.AccentColor = tpl.DefaultAccent
	}
	if strings.TrimSpace(doc.Style.FontFamily) == "" {
		doc.Style.FontFamily = DefaultFontFamily
	}
	if doc.Style.LineSpacing <= 0 {
		doc.Style.LineSpacing = DefaultLineSpacing
	}
}

// Marshal 编码文档用于持久化。
func Marshal(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// Clone returns a deep copy of doc.
func Clone(doc Document) Document {
	out := doc
	out.Experience = append([]Experience{}, doc.Experience...)
	out.Education = append([]Education{}, doc.Education...)
	out.Skills = append([]Skill{}, doc.Skills...)
	out.Languages = append([]Language{}, doc.Languages...)
	out.Projects = append([]Project{}, doc.Projects...)
	out.Volunteering = append([]Volunteering{}, doc.Volunteering...)
	out.Courses = append([]Course{}, doc.Courses...)
	out.Military = append([]Military{}, doc.Military...)
	out.References = append([]Reference{}, doc.References...)
	out.Hobbies = append([]Hobby{}, doc.Hobbies...)
	out.Links = append([]Link{}, doc.Links...)
	return out
}

// ApplyTemplate 切换模板：只修改模板指针与默认强调色，分区内容保持不变。
func ApplyTemplate(doc Document, key string) (Document, error) {
	tpl, ok := catalog.Lookup(key)
	if !ok {
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, key)
	}
	out := Clone(doc)
	out.Template = tpl.Key
	out.Style.AccentColor = tpl.DefaultAccent
	return out, nil
}
