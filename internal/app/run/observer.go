package run

import (
	"time"

	"github.com/John-Robertt/modup/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：OnItemDone 会来自多个 goroutine。
type Observer interface {
	// OnStart 在 Execute 开始时调用（早于扫描目录）。
	OnStart(opts Options)
	// OnPhaseDone 在阶段结束/就绪时调用（scan / cache / exec / persist）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个归档处理完成时调用；idx 为完成序号（从 1 开始），与输出顺序无关。
	OnItemDone(idx, total int, rep domain.ModReport, dur time.Duration)
}
