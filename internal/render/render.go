package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"cvStudio/internal/catalog"
	"cvStudio/internal/cv"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// Options 控制渲染模式。
type Options struct {
	// Thumbnail 以缩小、不可交互的方式渲染，用于模板预览网格。
	Thumbnail bool
	// PhotoSrc 为已内联的头像（data URI 或 https URL），为空则不渲染头像。
	PhotoSrc string
}

// Renderer 将 (模板, 文档, 样式) 映射为 HTML，本身不读写任何外部状态。
type Renderer struct {
	pages  map[string]*template.Template
	policy *bluemonday.Policy
}

type view struct {
	Key       string
	Doc       cv.Document
	Style     cv.Style
	Thumbnail bool
	PhotoSrc  template.URL
}

type linkData struct {
	Thumbnail bool
	Label     string
	URL       string
}

// New parses the embedded layouts of every catalog template.
func New() (*Renderer, error) {
	r := &Renderer{
		pages:  make(map[string]*template.Template),
		policy: newRichTextPolicy(),
	}

	funcs := template.FuncMap{
		"rich":     r.rich,
		"period":   period,
		"join":     join,
		"level":    level,
		"fullName": fullName,
		"linkView": func(thumbnail bool, label, url string) linkData {
			if strings.TrimSpace(label) == "" {
				label = url
			}
			return linkData{Thumbnail: thumbnail, Label: label, URL: url}
		},
	}

	for _, tpl := range catalog.All() {
		t, err := template.New(tpl.Key).Funcs(funcs).ParseFS(templateFS, "templates/base.gohtml", "templates/"+tpl.Key+".gohtml")
		if err != nil {
			return nil, fmt.Errorf("parse template %q: %w", tpl.Key, err)
		}
		r.pages[tpl.Key] = t
	}
	return r, nil
}

// MustNew wraps New and panics on failure; templates are embedded so a
// failure is a programming error.
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Render 将文档按指定模板渲染为完整 HTML 文档。未知模板回落到默认模板。
func (r *Renderer) Render(w io.Writer, key string, doc cv.Document, opts Options) error {
	tpl := catalog.Resolve(key)
	page, ok := r.pages[tpl.Key]
	if !ok {
		return fmt.Errorf("template %q not loaded", tpl.Key)
	}

	doc = cv.Clone(doc)
	if doc.Style.AccentColor == "" {
		doc.Style.AccentColor = tpl.DefaultAccent
	}
	if doc.Style.FontFamily == "" {
		doc.Style.FontFamily = cv.DefaultFontFamily
	}
	if doc.Style.LineSpacing <= 0 {
		doc.Style.LineSpacing = cv.DefaultLineSpacing
	}

	v := view{
		Key:       tpl.Key,
		Doc:       doc,
		Style:     doc.Style,
		Thumbnail: opts.Thumbnail,
		PhotoSrc:  safePhotoSrc(opts.PhotoSrc),
	}

	var buf bytes.Buffer
	if err := page.ExecuteTemplate(&buf, "document", v); err != nil {
		return fmt.Errorf("execute template %q: %w", tpl.Key, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// RenderString is a convenience wrapper around Render.
func (r *Renderer) RenderString(key string, doc cv.Document, opts Options) (string, error) {
	var sb strings.Builder
	if err := r.Render(&sb, key, doc, opts); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func newRichTextPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p", "span", "li", "ul", "ol")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

func (r *Renderer) rich(s string) template.HTML {
	if cv.PlainText(s) == "" {
		return ""
	}
	return template.HTML(r.policy.Sanitize(s))
}

func safePhotoSrc(src string) template.URL {
	src = strings.TrimSpace(src)
	switch {
	case strings.HasPrefix(src, "data:image/"):
		return template.URL(src)
	case strings.HasPrefix(src, "https://"), strings.HasPrefix(src, "http://"):
		return template.URL(src)
	default:
		return ""
	}
}

var monthNames = [...]string{"", "Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func formatYearMonth(d cv.YearMonth) string {
	if d.Year == 0 {
		return ""
	}
	if d.Month >= 1 && d.Month <= 12 {
		return fmt.Sprintf("%s %d", monthNames[d.Month], d.Year)
	}
	return fmt.Sprintf("%d", d.Year)
}

func period(start, end cv.YearMonth, current bool) string {
	from := formatYearMonth(start)
	to := formatYearMonth(end)
	if current {
		to = "Present"
	}
	switch {
	case from == "" && to == "":
		return ""
	case from == "":
		return to
	case to == "":
		return from
	default:
		return from + " – " + to
	}
}

func join(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func level(n int) string {
	if n <= 0 {
		return ""
	}
	if n > 5 {
		n = 5
	}
	return strings.Repeat("●", n) + strings.Repeat("○", 5-n)
}

func fullName(p cv.Personal) string {
	return join(" ", p.FirstName, p.LastName)
}
