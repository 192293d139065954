package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如资源缺失、需要付费）
// - 5xxx：系统错误（需要中断流程）
const (
	OK                  = 0
	ResourceMissing     = 4004
	EntitlementRequired = 4020
	EntitlementExpired  = 4021
	SystemError         = 5000
	ExportFailed        = 5001
)

// Slug 返回错误码对应的机器可读标识，随 JSON 错误体一起返回给前端。
func Slug(code int) string {
	switch code {
	case OK:
		return "ok"
	case ResourceMissing:
		return "resource_missing"
	case EntitlementRequired:
		return "entitlement_required"
	case EntitlementExpired:
		return "entitlement_expired"
	case ExportFailed:
		return "export_failed"
	default:
		return "system_error"
	}
}
