package utils

import (
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

var ctrlCOccurred atomic.Bool

// ShutdownHook 第二次 Ctrl+C 时立即调用的关闭函数
var ShutdownHook func()

// SetupSignalHandler 注册中断信号处理，返回的通道在应当退出时被关闭。
// 检测进行中时第一次 Ctrl+C 只请求停止当前任务，第二次才退出程序。
func SetupSignalHandler(forceClose *atomic.Bool, checking *atomic.Bool) <-chan struct{} {
	slog.Debug("设置信号处理器")

	stop := make(chan struct{})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			slog.Debug("收到中断信号", "sig", sig)

			if checking.Load() {
				if ctrlCOccurred.CompareAndSwap(false, true) {
					forceClose.Store(true)
					slog.Warn("已发送停止检测信号，正在等待结果收集。再次按 Ctrl+C 将立即退出程序")
					continue
				}
			}

			if ShutdownHook != nil {
				ShutdownHook()
			}
			select {
			case <-stop:
			default:
				close(stop)
			}

			// 保险：5s 后强制退出
			time.AfterFunc(5*time.Second, func() {
				os.Exit(0)
			})
		}
	}()

	return stop
}
