package layout

import (
	"math"
	"sync"
)

// A4PageHeightPx 是 A4 纸在 96 DPI 下的高度，与打印 CSS 中的 .a4-page 保持一致。
const A4PageHeightPx = 1122.0

// MaxPages 是页数上限，超大高度（或 +Inf）不会在转换为 int 时溢出。
const MaxPages = 1 << 20

// Pages 分页指示：总页数与当前页（从 1 开始）。
type Pages struct {
	Total   int `json:"total"`
	Current int `json:"current"`
}

// Paginate derives page indicators from the rendered content height and the
// viewport scroll offset. Total is at least 1 and Current is clamped to
// [1, Total].
func Paginate(contentHeight, scrollTop, pageHeight float64) Pages {
	if pageHeight <= 0 {
		pageHeight = A4PageHeightPx
	}

	total := 1
	if contentHeight > 0 {
		total = clampPages(math.Ceil(contentHeight / pageHeight))
	}
	if total < 1 {
		total = 1
	}

	current := 1
	if scrollTop > 0 {
		current = clampPages(math.Floor(scrollTop/pageHeight) + 1)
	}
	if current < 1 {
		current = 1
	}
	if current > total {
		current = total
	}

	return Pages{Total: total, Current: current}
}

func clampPages(v float64) int {
	if v >= MaxPages {
		return MaxPages
	}
	return int(v)
}

// Observer 保存最近一次测量结果，在尺寸或滚动变化时重新计算分页，
// 仅当分页指示真正变化时回调 onChange。
type Observer struct {
	mu            sync.Mutex
	pageHeight    float64
	contentHeight float64
	scrollTop     float64
	last          Pages
	onChange      func(Pages)
}

// NewObserver returns an observer; onChange may be nil.
func NewObserver(pageHeight float64, onChange func(Pages)) *Observer {
	if pageHeight <= 0 {
		pageHeight = A4PageHeightPx
	}
	return &Observer{
		pageHeight: pageHeight,
		last:       Pages{Total: 1, Current: 1},
		onChange:   onChange,
	}
}

// Resize records a new content height (layout-size observer).
func (o *Observer) Resize(contentHeight float64) Pages {
	o.mu.Lock()
	o.contentHeight = contentHeight
	return o.recompute()
}

// Scroll records a new scroll offset of the containing viewport.
func (o *Observer) Scroll(scrollTop float64) Pages {
	o.mu.Lock()
	o.scrollTop = scrollTop
	return o.recompute()
}

// Measure records both values at once.
func (o *Observer) Measure(contentHeight, scrollTop float64) Pages {
	o.mu.Lock()
	o.contentHeight = contentHeight
	o.scrollTop = scrollTop
	return o.recompute()
}

// Pages returns the current indicators.
func (o *Observer) Pages() Pages {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// recompute 需在持锁状态下调用，返回前释放锁，回调在锁外执行。
func (o *Observer) recompute() Pages {
	pages := Paginate(o.contentHeight, o.scrollTop, o.pageHeight)
	changed := pages != o.last
	o.last = pages
	cb := o.onChange
	o.mu.Unlock()

	if changed && cb != nil {
		cb(pages)
	}
	return pages
}
