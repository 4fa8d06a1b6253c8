// main.go - Echo Flow Wails 应用入口

package main

import (
	"embed"
	"flag"
	"fmt"
	"os"

	"github.com/ncruces/zenity"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"

	"github.com/pkd-app/echo-flow/config"
)

const appName = "Echo Flow"

// 版本信息，发布构建时通过 -ldflags 注入
var (
	Version   = "0.1.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath  = flag.String("config", "", "配置文件路径（默认位于应用数据目录）")
	showVersion = flag.Bool("version", false, "显示版本信息")
	startHidden = flag.Bool("hidden", false, "启动时隐藏主窗口")
)

//go:embed all:frontend/dist
var assets embed.FS

//go:embed build/appicon.png
var icon []byte

// 首次启动时写入应用数据目录
//
//go:embed config/config.yaml
var defaultConfigContent []byte

func main() {
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	// 窗口参数依赖配置，所以在 Run 之前加载
	app := NewApp()
	app.loadConfig(*configPath)

	if err := wails.Run(appOptions(app, app.config, *startHidden)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		// 窗口宿主起不来时控制台可能不可见
		_ = zenity.Error(fmt.Sprintf("%s 启动失败:\n%v", appName, err),
			zenity.Title(appName),
			zenity.ErrorIcon)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Println(appName)
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Commit: %s\n", Commit)
	fmt.Printf("Built: %s\n", BuildTime)
}

func appOptions(app *App, cfg *config.Config, forceHidden bool) *options.App {
	w := cfg.Window
	return &options.App{
		Title:       w.Title,
		Width:       w.Width,
		Height:      w.Height,
		MinWidth:    w.MinWidth,
		MinHeight:   w.MinHeight,
		StartHidden: w.StartHidden || forceHidden,
		AlwaysOnTop: w.AlwaysOnTop,

		AssetServer:      &assetserver.Options{Assets: assets},
		BackgroundColour: &options.RGBA{R: 15, G: 15, B: 20, A: 1},

		OnStartup:     app.startup,
		OnDomReady:    app.domReady,
		OnBeforeClose: app.beforeClose,
		OnShutdown:    app.shutdown,

		Bind: []interface{}{app},

		Mac:     macOptions(),
		Windows: &windows.Options{},
		Linux: &linux.Options{
			Icon:             icon,
			ProgramName:      "echo-flow",
			WebviewGpuPolicy: linux.WebviewGpuPolicyOnDemand,
		},
	}
}

func macOptions() *mac.Options {
	return &mac.Options{
		TitleBar: &mac.TitleBar{
			TitlebarAppearsTransparent: true,
			HideTitle:                  true,
			FullSizeContent:            true,
		},
		About: &mac.AboutInfo{
			Title:   appName,
			Message: fmt.Sprintf("语音转写后输入到任意应用\n版本 %s", Version),
			Icon:    icon,
		},
		WebviewIsTransparent: true,
	}
}
