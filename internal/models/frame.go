package models

import (
	"fmt"
	"math"
	"time"
)

// 关键点名称（视觉worker输出的姿态关键点子集）
const (
	KeypointNose          = "nose"
	KeypointLeftShoulder  = "left_shoulder"
	KeypointRightShoulder = "right_shoulder"
	KeypointLeftHip       = "left_hip"
	KeypointRightHip      = "right_hip"
)

// 检测框类别
const (
	ClassPerson = "person"
	ClassBed    = "bed"
)

// Keypoint 姿态关键点（坐标归一化到 [0,1]，y 向下增大）
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z,omitempty"`
	Confidence float64 `json:"confidence"`
}

// BoundingBox 检测框（坐标归一化到 [0,1]）
type BoundingBox struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
}

// CenterY 检测框中心点的纵坐标
func (b *BoundingBox) CenterY() float64 {
	return (b.Y1 + b.Y2) / 2
}

// Frame 单帧感知信号（视觉worker每处理一帧产生一条）
// 一旦产生即不可变
type Frame struct {
	TimestampMS     int64               `json:"timestamp_ms"`
	Keypoints       map[string]Keypoint `json:"keypoints,omitempty"`
	Boxes           []BoundingBox       `json:"boxes,omitempty"`
	MotionIntensity float64             `json:"motion_intensity"` // 相对上一帧的关键点位移强度，[0,1]
}

// Time 帧时间戳
func (f *Frame) Time() time.Time {
	return time.UnixMilli(f.TimestampMS)
}

// Validate 校验帧数据（时间戳缺失或数值非法视为 MalformedFrame）
func (f *Frame) Validate() error {
	if f.TimestampMS <= 0 {
		return fmt.Errorf("frame missing timestamp")
	}
	if math.IsNaN(f.MotionIntensity) || f.MotionIntensity < 0 {
		return fmt.Errorf("frame has invalid motion intensity: %f", f.MotionIntensity)
	}
	for name, kp := range f.Keypoints {
		if math.IsNaN(kp.X) || math.IsNaN(kp.Y) || math.IsNaN(kp.Confidence) {
			return fmt.Errorf("frame has invalid keypoint %q", name)
		}
	}
	return nil
}

// keypointPair 取一对关键点的中点，两点都存在才有效
func (f *Frame) keypointPair(left, right string) (x, y float64, ok bool) {
	l, lok := f.Keypoints[left]
	r, rok := f.Keypoints[right]
	if !lok || !rok {
		return 0, 0, false
	}
	return (l.X + r.X) / 2, (l.Y + r.Y) / 2, true
}

// TorsoAngle 躯干与竖直方向的夹角（度），由肩/髋中点计算
// 关键点不足时返回 ok=false
func (f *Frame) TorsoAngle() (float64, bool) {
	sx, sy, ok := f.keypointPair(KeypointLeftShoulder, KeypointRightShoulder)
	if !ok {
		return 0, false
	}
	hx, hy, ok := f.keypointPair(KeypointLeftHip, KeypointRightHip)
	if !ok {
		return 0, false
	}

	dx := math.Abs(sx - hx)
	dy := math.Abs(sy - hy)
	if dy < 1e-6 {
		// 躯干完全水平
		return 90, true
	}
	return math.Atan2(dx, dy) * 180 / math.Pi, true
}

// HipCenterY 髋部中点纵坐标（0=画面顶部，1=底部）
func (f *Frame) HipCenterY() (float64, bool) {
	_, y, ok := f.keypointPair(KeypointLeftHip, KeypointRightHip)
	return y, ok
}

// NoseY 鼻部纵坐标
func (f *Frame) NoseY() (float64, bool) {
	kp, ok := f.Keypoints[KeypointNose]
	if !ok {
		return 0, false
	}
	return kp.Y, true
}

// PoseConfidence 指定关键点的平均置信度，缺失的关键点按 0 计
func (f *Frame) PoseConfidence(names ...string) float64 {
	if len(names) == 0 {
		return 0
	}
	var sum float64
	for _, name := range names {
		if kp, ok := f.Keypoints[name]; ok {
			sum += kp.Confidence
		}
	}
	return sum / float64(len(names))
}
