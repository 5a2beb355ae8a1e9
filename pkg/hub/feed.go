package hub

import (
	"sync"
	"time"

	"github.com/roadguard/go-roadguard/pkg/annotate"
	"github.com/roadguard/go-roadguard/pkg/monitor"
	"gocv.io/x/gocv"
)

// DefaultFrameInterval caps the dashboard camera stream at 10 fps.
const DefaultFrameInterval = 100 * time.Millisecond

// Feed publishes monitor reports to a transitions hub and annotated JPEG
// frames to a camera hub. Either hub may be nil. Nothing is encoded while
// a hub has no clients.
type Feed struct {
	Transitions *Hub
	Camera      *Hub
	// FrameInterval is the minimum time between camera frames.
	FrameInterval time.Duration
	// Quality is the JPEG quality of camera frames.
	Quality int

	mu        sync.Mutex
	lastFrame time.Time
	now       func() time.Time
}

// NewFeed creates a feed with default pacing.
func NewFeed(transitions, camera *Hub) *Feed {
	return &Feed{
		Transitions:   transitions,
		Camera:        camera,
		FrameInterval: DefaultFrameInterval,
		Quality:       70,
		now:           time.Now,
	}
}

// Observe implements monitor.Observer.
func (f *Feed) Observe(frame gocv.Mat, r monitor.Report) {
	if f.Transitions != nil && f.Transitions.ClientCount() > 0 {
		f.Transitions.BroadcastJSON(r)
	}

	if f.Camera == nil || f.Camera.ClientCount() == 0 || !f.due() {
		return
	}
	data, err := annotate.Snapshot(frame, annotate.Overlay{
		Face:   r.Face,
		EAR:    r.EAR,
		Alerts: r.Alerting(),
	}, f.Quality)
	if err != nil {
		f.Camera.logger.Debug("frame encode failed", "error", err)
		return
	}
	f.Camera.BroadcastBinary(data)
}

func (f *Feed) due() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if now.Sub(f.lastFrame) < f.FrameInterval {
		return false
	}
	f.lastFrame = now
	return true
}
