package xadmit

import (
	"net/http"
)

// HTTPMiddleware 创建 HTTP 准入中间件
//
// 检查顺序：免限路径 → 身份推导 → 原子判定。命中免限模式的
// 请求连身份都不会推导，更不会访问存储。
//
// 示例:
//
//	engine, _ := xadmit.New(redisClient, xadmit.WithMaxRequests(100))
//	mux := http.NewServeMux()
//	mux.Handle("/api/", xadmit.HTTPMiddleware(engine)(apiHandler))
func HTTPMiddleware(engine *Engine, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if engine == nil {
		panic("xadmit: HTTPMiddleware requires a non-nil Engine")
	}

	mopts := defaultMiddlewareOptions()
	for _, opt := range opts {
		opt(mopts)
	}
	if mopts.DenyHandler == nil {
		mopts.DenyHandler = defaultDenyHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy := engine.Policy()

			if shouldSkip(policy.SkipPatterns, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if mopts.SkipFunc != nil && mopts.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			id := ResolveIdentity(r.Header, policy)
			if handleAdmission(w, r, engine, mopts, id) {
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// handleAdmission 执行准入判定并处理结果。
// 返回 true 表示请求已被拒绝，调用方应直接返回。
func handleAdmission(w http.ResponseWriter, r *http.Request, engine *Engine, mopts *MiddlewareOptions, id Identity) bool {
	decision, err := engine.Decide(r.Context(), id)
	if err != nil {
		// 引擎侧错误（已关闭等）不阻塞业务请求，fail-open
		return false
	}

	if mopts.EnableHeaders {
		decision.SetHeaders(w)
	}

	if decision.Blocked {
		mopts.DenyHandler(w, r, decision)
		return true
	}

	return false
}

// HTTPMiddlewareFunc 创建 HTTP 准入中间件（函数式）
// 适用于需要 http.HandlerFunc 的场景
func HTTPMiddlewareFunc(engine *Engine, opts ...MiddlewareOption) func(http.HandlerFunc) http.HandlerFunc {
	middleware := HTTPMiddleware(engine, opts...)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return middleware(next).ServeHTTP
	}
}
