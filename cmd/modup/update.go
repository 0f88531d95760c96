package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/modup/internal/infra/logx"
	"github.com/John-Robertt/modup/internal/update"
)

func newUpdateCmd(g *globalFlags) *cobra.Command {
	f := &scanFlags{}
	var yes bool
	cmd := &cobra.Command{
		Use:   "update [dir]",
		Short: "扫描后把所有 update_available 的归档替换为新版本",
		Long: `update 先完整扫描一次，然后对每个 update_available 的归档：
备份旧文件 -> 下载新文件到临时文件并校验 SHA-512 -> 原子替换 -> 删除旧文件，
并把每次替换追加到更新日志。禁用的归档与同一项目的重复归档会被跳过。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, g, f, firstArg(args))
			if err != nil {
				return &exitError{Code: 1, Err: err}
			}
			defer s.Close()

			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
			rr, err := s.scan(cmd.Context(), stderr)
			if err != nil {
				return &exitError{Code: 1, Err: err}
			}
			plan, err := update.BuildPlan(rr.Items, s.eff.BackupDir)
			if err != nil {
				return &exitError{Code: 1, Err: err}
			}

			printPlan(stderr, plan)
			if len(plan.Steps) == 0 {
				fmt.Fprintln(stdout, "没有需要更新的 mod")
				return nil
			}
			if !yes && !confirm(cmd.InOrStdin(), stderr, len(plan.Steps)) {
				return &exitError{Code: 1, Err: fmt.Errorf("未确认，已取消（非交互环境请使用 --yes）")}
			}

			audit, closer, err := logx.NewAudit(s.eff.UpdateLog)
			if err != nil {
				return &exitError{Code: 1, Err: err}
			}
			defer closer.Close()

			outs := update.New(s.http, s.log, audit).ApplyAll(cmd.Context(), plan)
			failed := 0
			for _, o := range outs {
				if o.Err != nil {
					failed++
					fmt.Fprintf(stdout, "%s %s: %v\n", statusStyle(o.Status).Render("FAIL"), o.Step.Name, o.Err)
					continue
				}
				fmt.Fprintf(stdout, "%s %s %s -> %s (备份：%s)\n",
					statusStyle(o.Status).Render("OK"), o.Step.Name, o.Step.Version, o.Step.Latest, o.Step.BackupPath)
			}
			if failed > 0 {
				return &exitError{Code: 1, Err: fmt.Errorf("%d 个 mod 更新失败", failed)}
			}
			return nil
		},
	}
	addScanFlags(cmd, f)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "不询问直接执行")
	return cmd
}

func newRollbackCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <backup-file> <new-file> [dir]",
		Short: "用备份恢复一次更新，并删除更新后的文件",
		Example: `  modup rollback ferritecore-8.0.3-fabric.jar ferritecore-8.0.5-fabric.jar`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 3 {
				dir = args[2]
			}
			s, err := openSession(cmd, g, nil, dir)
			if err != nil {
				return &exitError{Code: 1, Err: err}
			}
			defer s.Close()

			backup := resolveIn(s.eff.BackupDir, args[0])
			newPath := resolveIn(s.eff.ModsDir, args[1])

			audit, closer, err := logx.NewAudit(s.eff.UpdateLog)
			if err != nil {
				return &exitError{Code: 1, Err: err}
			}
			defer closer.Close()

			restored, err := update.New(s.http, s.log, audit).Rollback(backup, newPath, s.eff.ModsDir)
			if err != nil {
				return &exitError{Code: 1, Err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已恢复：%s\n", restored)
			return nil
		},
	}
}

// resolveIn 把裸文件名解析到 dir 下；带路径的参数按原样（转为绝对路径）使用。
func resolveIn(dir, name string) string {
	if filepath.Base(name) == name {
		return filepath.Join(dir, name)
	}
	if abs, err := filepath.Abs(name); err == nil {
		return abs
	}
	return name
}

func printPlan(w io.Writer, p update.Plan) {
	for _, s := range p.Steps {
		fmt.Fprintf(w, "更新：%s %s -> %s（%s）\n", s.Name, s.Version, s.Latest, filepath.Base(s.NewPath))
	}
	for _, sk := range p.Skipped {
		fmt.Fprintf(w, "跳过：%s（%s）\n", sk.File, sk.Reason)
	}
}

func confirm(in io.Reader, w io.Writer, n int) bool {
	if f, ok := in.(*os.File); !ok || !isTTY(f) {
		return false
	}
	fmt.Fprintf(w, "将更新 %d 个 mod，继续？[y/N] ", n)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
