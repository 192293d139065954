package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxArtifactBytes = 20 << 20

// PageCountHeader 由内部导出接口设置，携带浏览器中测得的页数。
const PageCountHeader = "X-Page-Count"

const internalSecretHeader = "X-Internal-Secret"

// ServiceError 是导出服务返回的非 PDF 响应，消息可直接展示给用户。
type ServiceError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("export service %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("export service %d: %s", e.Status, e.Message)
}

// HTTPExporter 通过内部接口请求 PDF，使用 X-Internal-Secret 鉴权。
type HTTPExporter struct {
	baseURL  string
	secret   string
	client   *http.Client
	maxBytes int64
}

// NewHTTPExporter 构造 HTTPExporter，client 为 nil 时使用 60 秒超时的默认客户端。
func NewHTTPExporter(baseURL, secret string, client *http.Client) *HTTPExporter {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPExporter{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		secret:   strings.TrimSpace(secret),
		client:   client,
		maxBytes: maxArtifactBytes,
	}
}

// Export 请求文档的 PDF。只有 Content-Type 为 application/pdf 的响应才被当作产物，
// 其余响应体按 JSON 错误解析并返回 *ServiceError。
func (e *HTTPExporter) Export(ctx context.Context, documentID uint) (Artifact, error) {
	if e.secret == "" {
		return Artifact{}, fmt.Errorf("internal api secret missing")
	}
	if e.baseURL == "" {
		return Artifact{}, fmt.Errorf("internal api base url missing")
	}

	targetURL := fmt.Sprintf("%s/v1/internal/cv/%d/export", e.baseURL, documentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return Artifact{}, fmt.Errorf("build export request: %w", err)
	}
	req.Header.Set(internalSecretHeader, e.secret)
	req.Header.Set("Accept", "application/pdf, application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return Artifact{}, fmt.Errorf("request export: %w", err)
	}
	defer resp.Body.Close()

	// 多读一个字节用于判断是否超限，截断的 PDF 不能当作产物交付
	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return Artifact{}, fmt.Errorf("read export response: %w", err)
	}
	if int64(len(body)) > e.maxBytes {
		return Artifact{}, &ServiceError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "artifact_too_large",
			Message: fmt.Sprintf("exported document exceeds %d bytes", e.maxBytes),
		}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if resp.StatusCode == http.StatusOK && mediaType == "application/pdf" {
		pages, _ := strconv.Atoi(resp.Header.Get(PageCountHeader))
		return Artifact{
			Data:        body,
			ContentType: mediaType,
			Filename:    fmt.Sprintf("cv-%d.pdf", documentID),
			Pages:       pages,
		}, nil
	}

	return Artifact{}, parseServiceError(resp.StatusCode, body)
}

func parseServiceError(status int, body []byte) *ServiceError {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	svcErr := &ServiceError{Status: status}
	if err := json.Unmarshal(body, &payload); err == nil {
		svcErr.Code = payload.Code
		svcErr.Message = payload.Error
		if svcErr.Message == "" {
			svcErr.Message = payload.Message
		}
	}
	if svcErr.Message == "" {
		text := strings.TrimSpace(string(body))
		if len(text) > 256 {
			text = text[:256]
		}
		if text == "" {
			text = http.StatusText(status)
		}
		svcErr.Message = text
	}
	return svcErr
}
