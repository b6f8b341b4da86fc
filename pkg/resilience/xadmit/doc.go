// Package xadmit 提供基于共享存储的分布式请求准入控制（限流 + 封禁）。
//
// # 设计理念
//
// xadmit 以固定窗口算法对网络身份（IP 或请求头指纹）进行配额管理，
// 超限后施加一段时间的惩罚性封禁。所有状态保存在 Redis 中，
// 判定逻辑以单个 Lua 脚本原子执行，保证多实例水平扩展下
// 同一身份的判定全序化。Redis 故障时自动 fail-open（放行全部请求），
// 可用性优先于严格执行。
//
// # 核心概念
//
//   - Identity：限流主体，"ip:<addr>" 或 "fingerprint:<hash>"
//   - Policy：限流策略（窗口配额、封禁时长、跳过规则等）
//   - Engine：判定引擎，Decide/Query/Reset 操作
//   - Decision：判定结果，包含剩余配额、重试时间等
//
// # 键模型
//
// 两类自过期键，均以 {identity} 作为 hash tag 保证 Redis Cluster
// 下同槽（判定脚本需要同时操作两个键）：
//
//   - 封禁键 prefix:blocked:{identity}，值为封禁截止 epoch-ms
//   - 计数键 prefix:limit:{identity}:<bucket>，bucket = floor(now/window)，
//     键名自带窗口编号，窗口滚动后旧键自然过期，无需显式清零
//
// # 快速开始
//
//	engine, err := xadmit.New(redisClient,
//	    xadmit.WithMaxRequests(100),
//	    xadmit.WithWindow(time.Minute),
//	    xadmit.WithBlockDuration(5*time.Minute),
//	    xadmit.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	mux := http.NewServeMux()
//	mux.Handle("/api/", xadmit.HTTPMiddleware(engine)(apiHandler))
//
// # 降级行为
//
// 存储不可达、超时或脚本执行异常时，引擎返回满配额的放行结果，
// 绝不把基础设施故障放大为对正常流量的拒绝服务。故障检测由
// 熔断器承担：熔断打开期间直接放行，不再访问存储；状态迁移
// 仅记录一次告警日志，避免故障期间日志风暴。
//
// # 已知特性
//
// 固定窗口在窗口边界允许最多 2×MaxRequests 的突发（上个窗口尾部 +
// 新窗口头部），这是算法的固有容量特征，依赖方按此容量规划。
package xadmit
