package worker

import (
	"time"
)

// hashrateWindows is the number of one second samples in the moving
// average.
const hashrateWindows = 10

// hashrateOperations samples the attempt counter every second and
// publishes a moving average over the recent windows.
func (w *Worker) hashrateOperations() {
	w.evHandler("worker: hashrateOperations: G started")
	defer w.evHandler("worker: hashrateOperations: G completed")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var windows []uint64

	for {
		select {
		case <-ticker.C:
			windows = append(windows, w.attempts.Swap(0))
			if len(windows) > hashrateWindows {
				windows = windows[1:]
			}

			var total uint64
			for _, n := range windows {
				total += n
			}
			w.hashrateChanged.Publish(float64(total) / float64(len(windows)))

		case <-w.shut:
			return
		}
	}
}
