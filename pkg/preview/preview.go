// Package preview shows the annotated camera feed in a local OpenCV
// window.
//
// HighGUI is not thread safe on every backend, so a Window runs all of
// its window calls, creation and destruction included, on one goroutine
// locked to its OS thread.
package preview

import (
	"runtime"
	"sync"

	"github.com/roadguard/go-roadguard/pkg/annotate"
	"github.com/roadguard/go-roadguard/pkg/monitor"
	"gocv.io/x/gocv"
)

// DefaultTitle is the window title.
const DefaultTitle = "RoadGuard"

// display is the part of *gocv.Window the preview uses.
type display interface {
	IMShow(img gocv.Mat)
	WaitKey(delay int) int
	Close() error
}

type frame struct {
	mat    gocv.Mat
	report monitor.Report
}

// Window is a monitor observer that draws processed frames. Observe only
// hands the newest frame over; the window is created on the first frame.
type Window struct {
	title     string
	onQuit    func()
	quitOnce  sync.Once
	newWindow func(title string) display

	frames chan frame
	stop   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	err     error
}

// New creates a preview. onQuit is called once when the user presses
// q or Esc in the window.
func New(title string, onQuit func()) *Window {
	if title == "" {
		title = DefaultTitle
	}
	return &Window{
		title:     title,
		onQuit:    onQuit,
		newWindow: func(title string) display { return gocv.NewWindow(title) },
		frames:    make(chan frame, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Observe implements monitor.Observer. A frame still waiting to be shown
// is replaced.
func (w *Window) Observe(mat gocv.Mat, r monitor.Report) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if !w.started {
		w.started = true
		go w.loop()
	}

	f := frame{mat: mat.Clone(), report: r}
	select {
	case stale := <-w.frames:
		stale.mat.Close()
	default:
	}
	w.frames <- f
}

func (w *Window) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	var win display
	canvas := gocv.NewMat()
	defer canvas.Close()

	for {
		select {
		case <-w.stop:
			if win != nil {
				w.err = win.Close()
			}
			return

		case f := <-w.frames:
			if win == nil {
				win = w.newWindow(w.title)
			}
			f.mat.CopyTo(&canvas)
			f.mat.Close()
			annotate.Draw(&canvas, annotate.Overlay{
				Face:   f.report.Face,
				EAR:    f.report.EAR,
				Alerts: f.report.Alerting(),
			})
			win.IMShow(canvas)

			if IsQuitKey(win.WaitKey(1)) && w.onQuit != nil {
				w.quitOnce.Do(w.onQuit)
			}
		}
	}
}

// Close destroys the window on its own thread and waits for it.
func (w *Window) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	if !started {
		return nil
	}
	close(w.stop)
	<-w.done

	select {
	case f := <-w.frames:
		f.mat.Close()
	default:
	}
	return w.err
}

// IsQuitKey reports whether a WaitKey result asks to stop.
func IsQuitKey(key int) bool {
	switch key & 0xff {
	case 'q', 'Q', 27:
		return key >= 0
	default:
		return false
	}
}
