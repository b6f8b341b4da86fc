package xadmit

import (
	"encoding/json"
	"net/http"
)

// MiddlewareOptions HTTP 中间件配置选项
type MiddlewareOptions struct {
	// DenyHandler 自定义拒绝处理器，请求被拒绝时调用
	DenyHandler func(w http.ResponseWriter, r *http.Request, d *Decision)

	// SkipFunc 额外的跳过函数，返回 true 时跳过准入检查
	// 与策略里的 SkipPatterns 叠加生效
	SkipFunc func(r *http.Request) bool

	// EnableHeaders 是否在响应中添加 X-RateLimit-* 头
	EnableHeaders bool
}

// MiddlewareOption 中间件选项函数
type MiddlewareOption func(*MiddlewareOptions)

// defaultMiddlewareOptions 返回默认的中间件选项
func defaultMiddlewareOptions() *MiddlewareOptions {
	return &MiddlewareOptions{
		EnableHeaders: true,
		DenyHandler:   defaultDenyHandler,
	}
}

// denyBody 429 响应体
type denyBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// defaultDenyHandler 默认的拒绝处理器
// 返回 429 与 JSON 体 {"error":"Too many requests","status":429}
func defaultDenyHandler(w http.ResponseWriter, _ *http.Request, d *Decision) {
	d.SetHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	body, err := json.Marshal(denyBody{
		Error:  "Too many requests",
		Status: http.StatusTooManyRequests,
	})
	if err != nil {
		return
	}
	writeResponse(w, body)
}

// writeResponse 写入 HTTP 响应体
// 写入失败通常表示客户端已断开连接，无补救手段
func writeResponse(w http.ResponseWriter, data []byte) {
	if _, err := w.Write(data); err != nil {
		return
	}
}

// WithDenyHandler 设置自定义拒绝处理器
func WithDenyHandler(handler func(w http.ResponseWriter, r *http.Request, d *Decision)) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		opts.DenyHandler = handler
	}
}

// WithSkipFunc 设置额外的跳过函数
func WithSkipFunc(skipFunc func(r *http.Request) bool) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		opts.SkipFunc = skipFunc
	}
}

// WithMiddlewareHeaders 设置是否在响应中添加限流头
func WithMiddlewareHeaders(enable bool) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		opts.EnableHeaders = enable
	}
}
