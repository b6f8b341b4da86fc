package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/botboard/guardkit/pkg/resilience/xadmit"
)

// exitError 表示需要非零退出码但已完成输出的场景。
// 命令内部已完成所有输出，main 只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// usageError 参数错误，对应退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createPingCommand(),
		createStatusCommand(),
		createUnblockCommand(),
		createWarmupCommand(),
	}
}

// createPingCommand 创建 ping 子命令。
func createPingCommand() *cli.Command {
	return &cli.Command{
		Name:    "ping",
		Aliases: []string{"p"},
		Usage:   "探测存储连通性",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withEngine(ctx, cmd, cmdPing)
		},
	}
}

// createStatusCommand 创建 status 子命令。
func createStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Aliases:   []string{"s"},
		Usage:     "查看身份的配额与封禁状态",
		ArgsUsage: "<identity>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := identityArg(cmd)
			if err != nil {
				return err
			}
			return withEngine(ctx, cmd, func(ctx context.Context, engine *xadmit.Engine) error {
				return cmdStatus(ctx, engine, id)
			})
		},
	}
}

// createUnblockCommand 创建 unblock 子命令。
func createUnblockCommand() *cli.Command {
	return &cli.Command{
		Name:      "unblock",
		Aliases:   []string{"u"},
		Usage:     "解除封禁并清空计数",
		ArgsUsage: "<identity>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := identityArg(cmd)
			if err != nil {
				return err
			}
			return withEngine(ctx, cmd, func(ctx context.Context, engine *xadmit.Engine) error {
				return cmdUnblock(ctx, engine, id)
			})
		},
	}
}

// createWarmupCommand 创建 warmup 子命令。
func createWarmupCommand() *cli.Command {
	return &cli.Command{
		Name:  "warmup",
		Usage: "预加载判定脚本到存储",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client := newClient(cmd)
			defer func() { _ = client.Close() }()

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()

			if err := xadmit.WarmupScripts(ctx, client); err != nil {
				return fmt.Errorf("脚本预加载失败: %w", err)
			}
			fmt.Println("脚本预加载完成")
			return nil
		},
	}
}

// identityArg 提取并校验身份参数。
func identityArg(cmd *cli.Command) (xadmit.Identity, error) {
	arg := cmd.Args().First()
	if arg == "" {
		return "", &usageError{msg: "缺少 <identity> 参数，例如 ip:203.0.113.9"}
	}
	return xadmit.Identity(arg), nil
}

// newClient 根据全局选项创建存储客户端。
func newClient(cmd *cli.Command) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     cmd.String("addr"),
		Password: cmd.String("password"),
		DB:       cmd.Int("db"),
	})
}

// withEngine 创建引擎执行命令，统一处理超时与资源释放。
func withEngine(ctx context.Context, cmd *cli.Command, fn func(context.Context, *xadmit.Engine) error) error {
	client := newClient(cmd)
	defer func() { _ = client.Close() }()

	engine, err := xadmit.New(client, xadmit.WithKeyPrefix(cmd.String("prefix")))
	if err != nil {
		return fmt.Errorf("创建引擎失败: %w", err)
	}
	defer func() { _ = engine.Close() }()

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	return fn(ctx, engine)
}

// cmdPing 探测存储连通性。
// 离线时返回非零退出码（通过 exitError），使脚本和探针能正确检测存储状态。
func cmdPing(ctx context.Context, engine *xadmit.Engine) error {
	if err := engine.Health(ctx); err != nil {
		fmt.Printf("状态: 离线\n")
		fmt.Printf("详情: %v\n", err)
		return &exitError{code: 1}
	}

	fmt.Printf("状态: 在线\n")
	return nil
}

// cmdStatus 查看身份的配额与封禁状态。
func cmdStatus(ctx context.Context, engine *xadmit.Engine, id xadmit.Identity) error {
	info, err := engine.Query(ctx, id)
	if err != nil {
		return fmt.Errorf("查询失败: %w", err)
	}

	fmt.Printf("身份:     %s\n", info.Identity)
	fmt.Printf("上限:     %d\n", info.Limit)
	fmt.Printf("剩余:     %d\n", info.Remaining)
	if info.Blocked {
		fmt.Printf("封禁:     是 (至 %s)\n", info.BlockedUntil.Format(time.RFC3339))
	} else {
		fmt.Printf("封禁:     否\n")
	}
	if !info.ResetAt.IsZero() {
		fmt.Printf("窗口重置: %s\n", info.ResetAt.Format(time.RFC3339))
	}
	return nil
}

// cmdUnblock 解除封禁并清空计数。
func cmdUnblock(ctx context.Context, engine *xadmit.Engine, id xadmit.Identity) error {
	if err := engine.Reset(ctx, id); err != nil {
		return fmt.Errorf("解封失败: %w", err)
	}
	fmt.Printf("已解封 %s\n", id)
	return nil
}

// setupSignalHandler 设置信号处理。
// 第一次信号优雅取消，第二次信号强制退出（退出码 130 = 128 + SIGINT）。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
