package pdf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"cvStudio/internal/layout"
)

// Output 是一次 PDF 渲染的结果。Pages 由浏览器中测得的内容高度计算得出。
type Output struct {
	Data  []byte
	Pages layout.Pages
}

// Generator 持有一个复用的无头 Chromium，按需启动，多个页面可并发渲染。
type Generator struct {
	mu         sync.Mutex
	launch     *launcher.Launcher
	browser    *rod.Browser
	pageHeight float64
	logger     *slog.Logger
}

// NewGenerator 构造 Generator；pageHeight 为 0 时使用 A4 高度。
func NewGenerator(pageHeight float64, logger *slog.Logger) *Generator {
	if pageHeight <= 0 {
		pageHeight = layout.A4PageHeightPx
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{pageHeight: pageHeight, logger: logger}
}

func (g *Generator) connect() (*rod.Browser, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.browser != nil {
		return g.browser, nil
	}

	launch := launcher.New().
		Headless(true).
		NoSandbox(true)
	if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		launch.Cleanup()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	browser := rod.New().ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	g.launch = launch
	g.browser = browser
	g.logger.Info("headless browser ready")
	return browser, nil
}

// Close 关闭浏览器并清理临时目录。
func (g *Generator) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.browser != nil {
		_ = g.browser.Close()
		g.browser = nil
	}
	if g.launch != nil {
		g.launch.Cleanup()
		g.launch = nil
	}
}

// openPage 打开空白页、写入 HTML 并等待字体就绪。
func (g *Generator) openPage(ctx context.Context, htmlContent string) (*rod.Page, func(), error) {
	browser, err := g.connect()
	if err != nil {
		return nil, func() {}, err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, func() {}, fmt.Errorf("create page: %w", err)
	}
	cleanup := func() { _ = page.Close() }

	page = page.Timeout(30 * time.Second)
	if err := page.SetDocumentContent(htmlContent); err != nil {
		return nil, cleanup, fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, cleanup, fmt.Errorf("wait load: %w", err)
	}

	// 等待字体就绪，避免回退字体度量导致分页差异
	if _, err := page.Timeout(5 * time.Second).Eval(`() => {
	  if (document && document.fonts && document.fonts.ready) {
	    return Promise.race([
	      document.fonts.ready.then(() => true),
	      new Promise((resolve) => setTimeout(() => resolve(true), 3000))
	    ]);
	  }
	  return true;
	}`); err != nil {
		g.logger.Warn("document.fonts.ready wait failed, continue", slog.Any("error", err))
	}
	return page, cleanup, nil
}

// measureContentHeight 返回 #cv-content 的渲染高度（CSS 像素）。
func measureContentHeight(page *rod.Page) (float64, error) {
	res, err := page.Eval(`() => {
	  const el = document.getElementById('cv-content');
	  return el ? el.scrollHeight : document.body.scrollHeight;
	}`)
	if err != nil {
		return 0, fmt.Errorf("measure content height: %w", err)
	}
	return res.Value.Num(), nil
}

// PDF 渲染 HTML 为 A4 PDF，并返回测得的页数。
func (g *Generator) PDF(ctx context.Context, htmlContent string) (Output, error) {
	page, cleanup, err := g.openPage(ctx, htmlContent)
	defer cleanup()
	if err != nil {
		return Output{}, err
	}

	height, err := measureContentHeight(page)
	if err != nil {
		return Output{}, err
	}
	pages := layout.Paginate(height, 0, g.pageHeight)

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PaperWidth:        float64Ptr(8.27),
		PaperHeight:       float64Ptr(11.69),
		MarginTop:         float64Ptr(0),
		MarginBottom:      float64Ptr(0),
		MarginLeft:        float64Ptr(0),
		MarginRight:       float64Ptr(0),
		PreferCSSPageSize: true,
	})
	if err != nil {
		return Output{}, fmt.Errorf("export pdf: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return Output{}, fmt.Errorf("read pdf bytes: %w", err)
	}

	return Output{Data: data, Pages: pages}, nil
}

// Screenshot 截取 #a4-container 的 JPEG 图像，用于模板缩略图。
func (g *Generator) Screenshot(ctx context.Context, htmlContent string, quality int) ([]byte, error) {
	page, cleanup, err := g.openPage(ctx, htmlContent)
	defer cleanup()
	if err != nil {
		return nil, err
	}

	element, err := page.Timeout(5 * time.Second).Element("#a4-container")
	if err == nil {
		if data, shotErr := element.Screenshot(proto.PageCaptureScreenshotFormatJpeg, quality); shotErr == nil {
			return data, nil
		}
	}

	data, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: intPtr(quality),
	})
	if err != nil {
		return nil, fmt.Errorf("page screenshot: %w", err)
	}
	return data, nil
}

func float64Ptr(value float64) *float64 {
	return &value
}

func intPtr(value int) *int {
	return &value
}
