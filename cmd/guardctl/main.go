// guardctl 是 xadmit 准入引擎的运维命令行工具。
//
// 用法:
//
//	guardctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-a, --addr      存储地址 (默认: 127.0.0.1:6379)
//	--password      存储密码
//	--db            数据库编号 (默认: 0)
//	--prefix        键前缀 (默认: xadmit)
//	-t, --timeout   命令超时时间 (默认: 5s)
//
// 命令:
//
//	ping               探测存储连通性
//	status <identity>  查看身份的配额与封禁状态
//	unblock <identity> 解除封禁并清空计数
//	warmup             预加载判定脚本
//	help               显示帮助信息
//
// 退出码:
//
//	0: 命令执行成功（ping 命令: 存储在线）
//	1: 命令执行失败或存储离线（ping 命令）
//	2: 参数错误（缺少身份参数、未知命令等）
//
// 示例:
//
//	guardctl ping                                 # 探测默认地址的存储
//	guardctl status ip:203.0.113.9                # 查看某 IP 的配额状态
//	guardctl unblock fingerprint:a1b2c3d4e5       # 解封某指纹
//	guardctl -a redis.prod:6379 warmup            # 预加载脚本
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
)

// defaultTimeout 默认超时时间。
const defaultTimeout = 5 * time.Second

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "guardctl",
		Usage:   "xadmit 准入引擎运维工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "存储地址",
				Value:   "127.0.0.1:6379",
			},
			&cli.StringFlag{
				Name:  "password",
				Usage: "存储密码",
			},
			&cli.IntFlag{
				Name:  "db",
				Usage: "数据库编号",
				Value: 0,
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "键前缀",
				Value: "xadmit",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "命令超时时间",
				Value:   defaultTimeout,
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		// 退出码由 run() 统一映射，禁止框架直接 os.Exit。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandler(cancel)

	if err := app.Run(ctx, os.Args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr.msg)
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	return 0
}
