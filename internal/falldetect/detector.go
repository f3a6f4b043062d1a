package falldetect

// Thresholds 跌倒判定阈值。加速度计采样为合加速度模 (m/s²)，
// 静止时约 9.8。数值因设备而异，全部可配。
type Thresholds struct {
	High            float64 // 冲击沿高位：前一采样高于该值
	Low             float64 // 冲击沿低位：当前采样低于该值
	FreeFall        float64 // 自由落体判定线
	FreeFallSamples int     // 连续低于判定线的采样门限
}

// Detector 对单路加速度流做跌倒判定。两条独立线索：
//  1. 冲击沿：相邻两采样从 High 之上骤降到 Low 之下；
//  2. 持续自由落体：连续 FreeFallSamples 个采样低于 FreeFall。
//
// 非并发安全，调用方串行喂入采样。
type Detector struct {
	t        Thresholds
	prev     float64
	hasPrev  bool
	lowCount int
}

func NewDetector(t Thresholds) *Detector {
	return &Detector{t: t}
}

// Feed 喂入一个采样，判定为疑似跌倒时返回 true。
// 返回 true 后内部状态清零，等待下一轮。
func (d *Detector) Feed(magnitude float64) bool {
	edge := d.hasPrev && d.prev > d.t.High && magnitude < d.t.Low
	d.prev = magnitude
	d.hasPrev = true

	if magnitude < d.t.FreeFall {
		d.lowCount++
	} else {
		d.lowCount = 0
	}
	freefall := d.lowCount >= d.t.FreeFallSamples

	if edge || freefall {
		d.Reset()
		return true
	}
	return false
}

// Reset 清空历史状态
func (d *Detector) Reset() {
	d.prev = 0
	d.hasPrev = false
	d.lowCount = 0
}
