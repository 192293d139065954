package layout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginate_CeilingDivision(t *testing.T) {
	const h = A4PageHeightPx

	assert.Equal(t, 3, Paginate(3*h-1, 0, h).Total)
	assert.Equal(t, 3, Paginate(3*h, 0, h).Total)
	assert.Equal(t, 4, Paginate(3*h+1, 0, h).Total)
	assert.Equal(t, 1, Paginate(1, 0, h).Total)
}

func TestPaginate_MinimumOnePage(t *testing.T) {
	assert.Equal(t, Pages{Total: 1, Current: 1}, Paginate(0, 0, A4PageHeightPx))
	assert.Equal(t, Pages{Total: 1, Current: 1}, Paginate(-50, -10, A4PageHeightPx))
}

func TestPaginate_CurrentPageClamped(t *testing.T) {
	const h = A4PageHeightPx
	content := 3*h - 1
	viewport := 600.0
	maxScroll := content - viewport

	offsets := []float64{-100, 0, 1, h - 1, h, 2*h + 5, maxScroll, content, content * 10}
	for _, offset := range offsets {
		p := Paginate(content, offset, h)
		assert.Equal(t, 3, p.Total, "offset %v", offset)
		assert.GreaterOrEqual(t, p.Current, 1, "offset %v", offset)
		assert.LessOrEqual(t, p.Current, 3, "offset %v", offset)
	}

	assert.Equal(t, 1, Paginate(content, h-1, h).Current)
	assert.Equal(t, 2, Paginate(content, h, h).Current)
	assert.Equal(t, 3, Paginate(content, maxScroll, h).Current)
	assert.Equal(t, 3, Paginate(content, content*10, h).Current)
}

func TestPaginate_HugeHeightsDoNotOverflow(t *testing.T) {
	for _, h := range []float64{1e300, math.MaxFloat64, math.Inf(1)} {
		p := Paginate(h, h, 1000)
		assert.Equal(t, MaxPages, p.Total, h)
		assert.Equal(t, MaxPages, p.Current, h)
	}
	assert.Equal(t, Pages{Total: 1, Current: 1}, Paginate(math.NaN(), math.NaN(), 1000))
}

func TestPaginate_DefaultsPageHeight(t *testing.T) {
	assert.Equal(t, Paginate(2500, 0, A4PageHeightPx), Paginate(2500, 0, 0))
}

func TestObserver_ReportsOnlyChanges(t *testing.T) {
	var reported []Pages
	o := NewObserver(100, func(p Pages) { reported = append(reported, p) })

	o.Resize(50)
	o.Resize(250)
	o.Scroll(10)
	o.Scroll(120)
	o.Scroll(130)
	o.Scroll(1000)
	o.Measure(90, 0)

	assert.Equal(t, []Pages{
		{Total: 3, Current: 1},
		{Total: 3, Current: 2},
		{Total: 3, Current: 3},
		{Total: 1, Current: 1},
	}, reported)
	assert.Equal(t, Pages{Total: 1, Current: 1}, o.Pages())
}
