// Package config loads go-roadguard settings from the environment.
// Every variable carries the ROADGUARD_ prefix; command-line flags in
// cmd/* override what is loaded here.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/roadguard/go-roadguard/pkg/camera"
	"github.com/roadguard/go-roadguard/pkg/detection"
	"github.com/roadguard/go-roadguard/pkg/landmark"
	"github.com/roadguard/go-roadguard/pkg/monitor"
	"github.com/roadguard/go-roadguard/pkg/sink"
	"github.com/roadguard/go-roadguard/pkg/snapshot"
)

// Prefix is prepended to every environment variable name.
const Prefix = "ROADGUARD_"

// Store backends.
const (
	StoreJSON     = "json"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Camera    Camera    `envPrefix:"CAMERA_"`
	Detector  Detector  `envPrefix:"DETECTOR_"`
	Landmarks Landmarks `envPrefix:"LANDMARK_"`
	Latch     Latch     `envPrefix:"LATCH_"`
	Store     Store     `envPrefix:"STORE_"`
	Backend   Backend   `envPrefix:"BACKEND_"`
	AMQP      AMQP      `envPrefix:"AMQP_"`
	MQTT      MQTT      `envPrefix:"MQTT_"`
	Snapshots Snapshots `envPrefix:"SNAPSHOT_"`
	Web       Web       `envPrefix:"WEB_"`

	Preview bool `env:"PREVIEW" envDefault:"false"`
}

// Camera selects the frame source.
type Camera struct {
	Preset    string `env:"PRESET"`
	Device    string `env:"DEVICE"    envDefault:"0"`
	Width     int    `env:"WIDTH"     envDefault:"640"`
	Height    int    `env:"HEIGHT"    envDefault:"480"`
	Framerate int    `env:"FRAMERATE" envDefault:"30"`
	Quality   int    `env:"QUALITY"   envDefault:"80"`
	VideoFile string `env:"VIDEO_FILE"`
	Realtime  bool   `env:"REALTIME"  envDefault:"true"`
}

// Detector selects the face detector.
type Detector struct {
	Kind          string  `env:"KIND"           envDefault:"dnn"`
	Model         string  `env:"MODEL"          envDefault:"models/res10_300x300_ssd_iter_140000.caffemodel"`
	ModelConfig   string  `env:"MODEL_CONFIG"   envDefault:"models/deploy.prototxt"`
	MinConfidence float64 `env:"MIN_CONFIDENCE" envDefault:"0.5"`
	Policy        string  `env:"POLICY"         envDefault:"first"`
}

// Landmarks configures the eye landmark model.
type Landmarks struct {
	Enabled   bool   `env:"ENABLED"    envDefault:"true"`
	Model     string `env:"MODEL"      envDefault:"models/face_landmarks_68.onnx"`
	InputSize int    `env:"INPUT_SIZE" envDefault:"112"`
}

// Latch holds the condition thresholds and severity cut-offs.
type Latch struct {
	FacePresent    time.Duration `env:"FACE_PRESENT"    envDefault:"3s"`
	EyesClosed     time.Duration `env:"EYES_CLOSED"     envDefault:"2s"`
	EARThreshold   float64       `env:"EAR_THRESHOLD"   envDefault:"0.29"`
	SeverityMedium time.Duration `env:"SEVERITY_MEDIUM" envDefault:"3s"`
	SeverityHigh   time.Duration `env:"SEVERITY_HIGH"   envDefault:"5s"`
}

// Store selects where trips and events are kept.
type Store struct {
	Kind        string `env:"KIND"         envDefault:"json"`
	Path        string `env:"PATH"         envDefault:"data/trips.json"`
	DatabaseURL string `env:"DATABASE_URL"`
}

// Backend is the remote roadguard API. When URL is set the monitor opens
// its trip there and posts events to it.
type Backend struct {
	URL     string        `env:"URL"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// AMQP publishes events to RabbitMQ when URL is set.
type AMQP struct {
	URL        string `env:"URL"`
	Exchange   string `env:"EXCHANGE"    envDefault:"roadguard"`
	RoutingKey string `env:"ROUTING_KEY" envDefault:"roadguard.events"`
}

// MQTT publishes events to a broker when Broker is set.
type MQTT struct {
	Broker   string `env:"BROKER"`
	ClientID string `env:"CLIENT_ID" envDefault:"roadguard"`
	Topic    string `env:"TOPIC"     envDefault:"roadguard/events"`
	QoS      int    `env:"QOS"       envDefault:"1"`
}

// Snapshots uploads evidence images to MinIO when Endpoint is set.
type Snapshots struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"SECRET_KEY" envDefault:"minioadmin"`
	UseSSL    bool   `env:"USE_SSL"    envDefault:"false"`
	Bucket    string `env:"BUCKET"     envDefault:"roadguard-snapshots"`
	Prefix    string `env:"PREFIX"`
	Quality   int    `env:"QUALITY"    envDefault:"85"`
}

// Web configures the API and dashboard server.
type Web struct {
	Enabled   bool   `env:"ENABLED"   envDefault:"true"`
	Addr      string `env:"ADDR"      envDefault:":8080"`
	Dashboard bool   `env:"DASHBOARD" envDefault:"true"`
}

// Error is a validation failure on one field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Load reads the environment.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads vars instead of the process environment when vars is
// non-nil.
func LoadFrom(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: Prefix}
	if vars != nil {
		opts.Environment = vars
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Camera.Preset != "" {
		if err := cfg.ApplyPreset(cfg.Camera.Preset); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// ApplyPreset overwrites the capture size and rate with a named preset.
func (c *Config) ApplyPreset(name string) error {
	p := camera.GetPreset(name)
	if p == nil {
		return &Error{Field: "camera.preset", Message: fmt.Sprintf("unknown preset %q", name)}
	}
	c.Camera.Preset = name
	c.Camera.Width = p.Width
	c.Camera.Height = p.Height
	c.Camera.Framerate = p.Framerate
	return nil
}

// Validate returns the first invalid field as an *Error.
func (c *Config) Validate() error {
	cam := c.CameraConfig()
	if errs := cam.Validate(); len(errs) > 0 {
		return &Error{Field: "camera", Message: strings.Join(errs, "; ")}
	}
	if _, err := detection.ParseKind(c.Detector.Kind); err != nil {
		return &Error{Field: "detector.kind", Message: err.Error()}
	}
	if _, err := detection.ParsePolicy(c.Detector.Policy); err != nil {
		return &Error{Field: "detector.policy", Message: err.Error()}
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence >= 1 {
		return &Error{Field: "detector.min_confidence", Message: "must be in [0, 1)"}
	}
	if c.Latch.FacePresent <= 0 || c.Latch.EyesClosed <= 0 {
		return &Error{Field: "latch", Message: "thresholds must be positive"}
	}
	if c.Latch.EARThreshold <= 0 || c.Latch.EARThreshold >= 1 {
		return &Error{Field: "latch.ear_threshold", Message: "must be in (0, 1)"}
	}
	if c.Latch.SeverityHigh < c.Latch.SeverityMedium {
		return &Error{Field: "latch.severity_high", Message: "must not be below severity_medium"}
	}
	switch c.Store.Kind {
	case StoreJSON, StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return &Error{Field: "store.database_url", Message: "required for the postgres store"}
		}
	default:
		return &Error{Field: "store.kind", Message: fmt.Sprintf("unknown store %q", c.Store.Kind)}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return &Error{Field: "mqtt.qos", Message: "must be 0, 1 or 2"}
	}
	if c.Snapshots.Quality < 1 || c.Snapshots.Quality > 100 {
		return &Error{Field: "snapshot.quality", Message: "must be between 1 and 100"}
	}
	return nil
}

// CameraConfig converts to the camera package config.
func (c *Config) CameraConfig() camera.Config {
	return camera.Config{
		Device:    c.Camera.Device,
		Width:     c.Camera.Width,
		Height:    c.Camera.Height,
		Framerate: c.Camera.Framerate,
		Quality:   c.Camera.Quality,
		VideoFile: c.Camera.VideoFile,
		Realtime:  c.Camera.Realtime,
	}
}

// DetectorConfig converts to the detection package config.
func (c *Config) DetectorConfig() detection.Config {
	d := detection.DefaultConfig()
	d.Kind = detection.Kind(strings.ToLower(c.Detector.Kind))
	d.ModelPath = c.Detector.Model
	d.ConfigPath = c.Detector.ModelConfig
	d.ConfidenceThresh = c.Detector.MinConfidence
	return d
}

// Policy returns the parsed face selection policy.
func (c *Config) Policy() detection.Policy {
	p, err := detection.ParsePolicy(c.Detector.Policy)
	if err != nil {
		return detection.PolicyFirst
	}
	return p
}

// LandmarkConfig converts to the landmark package config.
func (c *Config) LandmarkConfig() landmark.Config {
	return landmark.Config{ModelPath: c.Landmarks.Model, InputSize: c.Landmarks.InputSize}
}

// Conditions builds the monitored conditions.
func (c *Config) Conditions() []monitor.Condition {
	conds := []monitor.Condition{monitor.FacePresence(c.Latch.FacePresent)}
	if c.Landmarks.Enabled {
		conds = append(conds, monitor.EyeClosure(c.Latch.EARThreshold, c.Latch.EyesClosed))
	}
	return conds
}

// Severity returns the event grading policy.
func (c *Config) Severity() monitor.ThresholdSeverity {
	return monitor.ThresholdSeverity{Medium: c.Latch.SeverityMedium, High: c.Latch.SeverityHigh}
}

// MQTTConfig converts to the sink config.
func (c *Config) MQTTConfig() sink.MQTTConfig {
	return sink.MQTTConfig{
		Broker:   c.MQTT.Broker,
		ClientID: c.MQTT.ClientID,
		Topic:    c.MQTT.Topic,
		QoS:      byte(c.MQTT.QoS),
	}
}

// SnapshotConfig converts to the snapshot package config.
func (c *Config) SnapshotConfig() snapshot.Config {
	return snapshot.Config{
		Endpoint:  c.Snapshots.Endpoint,
		AccessKey: c.Snapshots.AccessKey,
		SecretKey: c.Snapshots.SecretKey,
		UseSSL:    c.Snapshots.UseSSL,
		Bucket:    c.Snapshots.Bucket,
		Prefix:    c.Snapshots.Prefix,
	}
}
