// Package xlog 提供基于 log/slog 的结构化日志能力。
//
// # 设计理念
//
//   - 强制 context 传递，保证请求级信息可以随日志传播
//   - 方法签名只接受 slog.Attr，避免隐式 key-value 转换开销
//   - 动态级别控制，运行时可调，无需重启
//   - Build() 返回 cleanup 函数，统一管理输出资源的生命周期
//
// # 快速开始
//
//	logger, cleanup, err := xlog.New().
//	    SetLevelString("info").
//	    SetFormat("json").
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
//
//	logger.Info(ctx, "server started", slog.Int("port", 8080))
//
// # 日志轮转
//
// 通过 lumberjack 支持按大小轮转：
//
//	logger, cleanup, _ := xlog.New().
//	    SetRotation("/var/log/app.log", 100, 7, 30).
//	    Build()
package xlog
