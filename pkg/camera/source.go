package camera

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

var (
	// ErrUnavailable is returned when the capture device or file cannot be opened.
	ErrUnavailable = errors.New("camera: unavailable")
	// ErrReadFailed is returned when a live device stops delivering frames.
	ErrReadFailed = errors.New("camera: read failed")
	// ErrUnsupportedFormat is returned by Normalize for unknown channel layouts.
	ErrUnsupportedFormat = errors.New("camera: unsupported frame format")
)

// Source delivers frames. The caller owns every returned Mat and must
// Close it. Read returns io.EOF when a finite source is exhausted.
type Source interface {
	Read() (gocv.Mat, error)
	Close() error
}

// Capture reads frames from an OpenCV VideoCapture.
type Capture struct {
	vc   *gocv.VideoCapture
	name string
	file bool

	interval time.Duration // zero disables pacing
	last     time.Time

	mu     sync.Mutex
	closed bool
}

// OpenDevice opens a live camera with the configured size and frame rate.
func OpenDevice(cfg Config) (*Capture, error) {
	var dev any = cfg.Device
	if idx, err := strconv.Atoi(cfg.Device); err == nil {
		dev = idx
	}

	vc, err := gocv.OpenVideoCapture(dev)
	if err != nil {
		return nil, fmt.Errorf("%w: device %s: %v", ErrUnavailable, cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: device %s", ErrUnavailable, cfg.Device)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}

	return &Capture{vc: vc, name: cfg.Device}, nil
}

// OpenFile opens a recorded video. With realtime set, Read sleeps so
// frames are delivered at the file's own frame rate.
func OpenFile(path string, realtime bool) (*Capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, path)
	}

	c := &Capture{vc: vc, name: path, file: true}
	if realtime {
		c.interval = frameInterval(vc.Get(gocv.VideoCaptureFPS))
	}
	return c, nil
}

// Open picks OpenFile or OpenDevice from cfg.
func Open(cfg Config) (*Capture, error) {
	if cfg.VideoFile != "" {
		return OpenFile(cfg.VideoFile, cfg.Realtime)
	}
	return OpenDevice(cfg)
}

// Name returns the device or file the capture reads from.
func (c *Capture) Name() string {
	return c.name
}

// Read grabs the next frame.
func (c *Capture) Read() (gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return gocv.Mat{}, fmt.Errorf("%w: closed", ErrUnavailable)
	}

	if c.interval > 0 && !c.last.IsZero() {
		if wait := c.interval - time.Since(c.last); wait > 0 {
			time.Sleep(wait)
		}
	}

	mat := gocv.NewMat()
	if ok := c.vc.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		if c.file {
			return gocv.Mat{}, io.EOF
		}
		return gocv.Mat{}, fmt.Errorf("%w: %s", ErrReadFailed, c.name)
	}
	c.last = time.Now()
	return mat, nil
}

// Close releases the device. It is safe to call more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.vc.Close()
}

func frameInterval(fps float64) time.Duration {
	if fps <= 0 || fps > MaxFramerate {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

// Normalize converts frame in place to 3-channel BGR. Four-channel
// captures (BGRA) and grayscale frames are converted; BGR is left alone.
func Normalize(frame *gocv.Mat) error {
	if frame.Empty() {
		return fmt.Errorf("%w: empty frame", ErrUnsupportedFormat)
	}

	var code gocv.ColorConversionCode
	switch frame.Channels() {
	case 3:
		return nil
	case 4:
		code = gocv.ColorBGRAToBGR
	case 1:
		code = gocv.ColorGrayToBGR
	default:
		return fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, frame.Channels())
	}

	dst := gocv.NewMat()
	gocv.CvtColor(*frame, &dst, code)
	frame.Close()
	*frame = dst
	return nil
}
