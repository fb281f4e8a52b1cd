package window

import (
	"errors"
	"sync"
	"time"

	"wisefido-vision/internal/models"
)

// ErrInsufficientHistory 窗口内的历史不足以做出判断
// 调用方应视为"本 tick 无法判定"，而不是对外暴露的错误
var ErrInsufficientHistory = errors.New("insufficient history in signal window")

// ErrNonMonotonicFrame 帧时间戳不晚于窗口内最后一帧
var ErrNonMonotonicFrame = errors.New("frame timestamp is not after the last frame")

// Window 信号窗口：按时间排序的帧环形缓冲
// 单写者（帧消费者）、tick 内多规则只读；读写都持短锁
// 环形结构用下标索引实现（arena + start/count），避免指针链表的别名问题
type Window struct {
	mu        sync.Mutex
	frames    []models.Frame // arena，长度固定为 capacity
	start     int            // 最老帧的下标
	count     int
	retention time.Duration
}

// New 创建信号窗口
// retention: 保留时长；capacity: 最大帧数。两者取更紧的边界
func New(retention time.Duration, capacity int) *Window {
	return &Window{
		frames:    make([]models.Frame, capacity),
		retention: retention,
	}
}

// Push 追加一帧，淘汰超出保留时长或容量的旧帧；均摊 O(1)
func (w *Window) Push(f models.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count > 0 {
		last := w.frames[(w.start+w.count-1)%len(w.frames)]
		if f.TimestampMS <= last.TimestampMS {
			return ErrNonMonotonicFrame
		}
	}

	// 容量满时先丢最老的一帧
	if w.count == len(w.frames) {
		w.start = (w.start + 1) % len(w.frames)
		w.count--
	}

	w.frames[(w.start+w.count)%len(w.frames)] = f
	w.count++

	// 按保留时长淘汰（以新帧的时间为基准）
	horizon := f.TimestampMS - w.retention.Milliseconds()
	for w.count > 1 && w.frames[w.start].TimestampMS < horizon {
		w.start = (w.start + 1) % len(w.frames)
		w.count--
	}

	return nil
}

// Len 当前缓冲的帧数
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Snapshot 返回最近 duration 时长内帧的只读副本（时间升序）
// 缓冲的时间跨度不足 duration 时返回 ErrInsufficientHistory
func (w *Window) Snapshot(duration time.Duration) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == 0 {
		return Snapshot{}, ErrInsufficientHistory
	}

	newest := w.frames[(w.start+w.count-1)%len(w.frames)]
	oldest := w.frames[w.start]
	if newest.TimestampMS-oldest.TimestampMS < duration.Milliseconds() {
		return Snapshot{}, ErrInsufficientHistory
	}

	cutoff := newest.TimestampMS - duration.Milliseconds()
	out := make([]models.Frame, 0, w.count)
	for i := 0; i < w.count; i++ {
		f := w.frames[(w.start+i)%len(w.frames)]
		if f.TimestampMS >= cutoff {
			out = append(out, f)
		}
	}

	return Snapshot{frames: out}, nil
}

// MotionStats 窗口内运动强度的聚合值
type MotionStats struct {
	Mean float64
	Max  float64
	Min  float64
}

// MotionSince 最近 duration 内运动强度的聚合（按需计算，不做缓存）
func (w *Window) MotionSince(duration time.Duration) (MotionStats, error) {
	snap, err := w.Snapshot(duration)
	if err != nil {
		return MotionStats{}, err
	}
	return snap.Motion(), nil
}

// Snapshot 窗口的只读视图（副本，可重复遍历）
type Snapshot struct {
	frames []models.Frame
}

// Frames 快照内的帧（时间升序）
func (s Snapshot) Frames() []models.Frame {
	return s.frames
}

// Len 快照内的帧数
func (s Snapshot) Len() int {
	return len(s.frames)
}

// First 最老的一帧
func (s Snapshot) First() models.Frame {
	return s.frames[0]
}

// Last 最新的一帧
func (s Snapshot) Last() models.Frame {
	return s.frames[len(s.frames)-1]
}

// Duration 快照覆盖的时间跨度
func (s Snapshot) Duration() time.Duration {
	if len(s.frames) < 2 {
		return 0
	}
	return time.Duration(s.Last().TimestampMS-s.First().TimestampMS) * time.Millisecond
}

// Motion 快照内运动强度的聚合值
func (s Snapshot) Motion() MotionStats {
	if len(s.frames) == 0 {
		return MotionStats{}
	}
	stats := MotionStats{Min: s.frames[0].MotionIntensity, Max: s.frames[0].MotionIntensity}
	var sum float64
	for _, f := range s.frames {
		sum += f.MotionIntensity
		if f.MotionIntensity > stats.Max {
			stats.Max = f.MotionIntensity
		}
		if f.MotionIntensity < stats.Min {
			stats.Min = f.MotionIntensity
		}
	}
	stats.Mean = sum / float64(len(s.frames))
	return stats
}
