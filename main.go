package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/twj0/ip-address-purity-checker/app"
	"github.com/twj0/ip-address-purity-checker/utils"
)

// 命令行参数
var (
	flagConfigPath = flag.String("f", "", "配置文件路径")
	flagLogLevel   = flag.String("log-level", "", "日志级别(debug/info/warn/error)")
)

func main() {
	flag.Parse()

	utils.InitLogger(*flagLogLevel)

	application := app.New(fmt.Sprintf("%s-%s", Version, CurrentCommit), *flagConfigPath)
	slog.Info(fmt.Sprintf("当前版本: %s-%s", Version, CurrentCommit))

	if err := application.Initialize(); err != nil {
		slog.Error(fmt.Sprintf("初始化失败: %v", err))
		os.Exit(1)
	}

	application.Run()
}
