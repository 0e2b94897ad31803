package aggregator

import "time"

type volumeSample struct {
	at     time.Time
	volume float64
}

// volumeWindow keeps the trailing sum of sealed finest-timeframe bar volumes.
type volumeWindow struct {
	width   time.Duration
	samples []volumeSample
	sum     float64
}

func (w *volumeWindow) add(at time.Time, v float64) {
	w.samples = append(w.samples, volumeSample{at: at, volume: v})
	w.sum += v
}

// evict drops samples that opened before now-width.
func (w *volumeWindow) evict(now time.Time) {
	if w.width <= 0 {
		return
	}
	cutoff := now.Add(-w.width)
	i := 0
	for i < len(w.samples) && w.samples[i].at.Before(cutoff) {
		w.sum -= w.samples[i].volume
		i++
	}
	if i == 0 {
		return
	}
	w.samples = append(w.samples[:0], w.samples[i:]...)
	if len(w.samples) == 0 {
		w.sum = 0
	}
}
