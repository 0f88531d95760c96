package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

// exitError 让 RunE 返回非零退出码，而不是在命令内部直接 os.Exit。
type exitError struct {
	Code int
	Err  error
}

func (e *exitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *exitError) Unwrap() error { return e.Err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// version 由 -ldflags 注入。
var version = "dev"

// execute 运行 CLI 并返回退出码：0 成功；1 运行失败（目录不存在、配置错误、更新失败）；2 用法错误。
//
// fang 负责帮助页与用法渲染；错误输出仍由 reportError 统一，保证 stderr 的措辞与退出码一致。
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := fang.Execute(ctx, root,
		fang.WithVersion(version),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) { reportError(w, err) }),
	)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 2
}

func reportError(w io.Writer, err error) {
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.Err != nil {
			fmt.Fprintf(w, "错误：%v\n", ee.Err)
		}
		return
	}
	fmt.Fprintf(w, "参数错误：%v\n", err)
}

// globalFlags 是所有子命令共享的参数。
type globalFlags struct {
	configFile string
	logLevel   string
	noCache    bool
}

// scanFlags 是 scan/update 共享的参数。
type scanFlags struct {
	gameVersion string
	concurrency int
	format      string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "modup",
		Short: "识别 Minecraft mod 归档并在 Modrinth 上查找可用更新",
		Long: `modup 读取 mods 目录下的 .jar / .jar.disabled 归档，
从清单与文件名推断 mod 身份，再通过 Modrinth 查找目标游戏版本下的最新兼容版本。

stdout 不是终端时只输出一个 JSON 报告；进度与摘要写到 stderr。`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "配置文件路径（json/yaml/toml）")
	pf.StringVar(&g.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	pf.BoolVar(&g.noCache, "no-cache", false, "本次运行不读写缓存快照")

	root.AddCommand(newScanCmd(g), newUpdateCmd(g), newRollbackCmd(g))
	return root
}

func addScanFlags(cmd *cobra.Command, f *scanFlags) {
	cmd.Flags().StringVar(&f.gameVersion, "game-version", "", "目标游戏版本（默认使用每个归档自身声明的版本）")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "并发数 [1,64]")
}

func newScanCmd(g *globalFlags) *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "扫描 mods 目录并输出识别/更新报告",
		Example: `  modup scan
  modup scan ~/.minecraft/mods --game-version 1.21.1
  modup scan --format yaml > report.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(f.format); err != nil {
				return err
			}
			s, err := openSession(cmd, g, f, firstArg(args))
			if err != nil {
				return &exitError{Code: 1, Err: err}
			}
			defer s.Close()

			rr, err := s.scan(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return &exitError{Code: 1, Err: err}
			}
			return emitReport(cmd.OutOrStdout(), cmd.ErrOrStderr(), rr, f.format)
		},
	}
	addScanFlags(cmd, f)
	cmd.Flags().StringVar(&f.format, "format", "", "输出格式：table|json|yaml（默认：终端 table，否则 json）")
	return cmd
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
