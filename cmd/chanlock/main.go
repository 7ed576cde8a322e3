// Command chanlock 运行频道锁服务。
//
//	chanlock serve                 启动 HTTP 入口与到期扫描
//	chanlock sweep [--every 1m]    执行一次（或循环）到期扫描，适合外部 cron
//	chanlock token --subject ops   签发管理接口使用的 admin Token
//	chanlock version
//
// 配置从 --config 指定的目录读取 chanlock.yaml，CHANLOCK_* 环境变量优先。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}
