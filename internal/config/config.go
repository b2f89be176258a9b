// Package config holds the tunables of the transfer engine and the CLI.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents how the CLI reaches its peer.
type Role string

const (
	RoleHost   Role = "host"   // listen for a peer (WebSocket or WebRTC)
	RoleClient Role = "client" // dial a listening peer
	RoleSerial Role = "serial" // BLE-UART bridge on a serial port
)

// Defaults. Channel timings follow a BLE characteristic that needs roughly a
// second of turnaround between messages.
const (
	DefaultChunkSize          = 14
	DefaultSendInterval       = 1200 * time.Millisecond
	DefaultParcelDelay        = 1200 * time.Millisecond
	DefaultActivityWindow     = 3 * time.Second
	DefaultStaleAfter         = 5 * time.Minute
	DefaultLockTimeout        = 20 * time.Second
	DefaultJanitorInterval    = 5 * time.Second
	DefaultNudgeAfter         = 10 * time.Second
	DefaultGapRepeatThreshold = 2
	DefaultQueueLimit         = 256
)

// Config stores every engine and CLI parameter.
type Config struct {
	// Identity
	DeviceID string // stable id announced as originId; never contains ':'
	Profile  string // text sent when a peer asks for our bio

	// Framing
	ChunkSize int // characters per parcel

	// Pacing
	SendInterval time.Duration // outbound scheduler tick
	ParcelDelay  time.Duration // delay between parcels of one transfer
	QueueLimit   int           // max pending outbound lines

	// Liveness
	ActivityWindow  time.Duration // inbound transfer counts as active for back-pressure
	StaleAfter      time.Duration // idle transfers are evicted after this
	JanitorInterval time.Duration // how often eviction and nudging run
	NudgeAfter      time.Duration // idle incomplete inbound transfers get a repeat request; 0 disables
	LockTimeout     time.Duration // channel arbiter auto-release

	// Recovery
	GapRepeatThreshold int  // gaps up to this count get a per-parcel repeat, more get a whole-package repeat
	AckDelivered       bool // send ">ACK:{id}" after delivering a transfer

	// CLI
	Role        Role
	ListenAddr  string  // host: WebSocket listen address
	URL         string  // client: WebSocket URL
	SerialPort  string  // serial: device path
	BaudRate    int     // serial: baud rate
	WebRTC      bool    // host/client: use a WebRTC DataChannel after signaling
	Loss        float64 // fraction of outbound lines to drop (testing)
	HistoryPath string  // SQLite file for delivered messages; "" disables history
}

// Default returns a configuration with a fresh device id and sensible timings.
func Default() *Config {
	return &Config{
		DeviceID:           uuid.NewString(),
		ChunkSize:          DefaultChunkSize,
		SendInterval:       DefaultSendInterval,
		ParcelDelay:        DefaultParcelDelay,
		QueueLimit:         DefaultQueueLimit,
		ActivityWindow:     DefaultActivityWindow,
		StaleAfter:         DefaultStaleAfter,
		JanitorInterval:    DefaultJanitorInterval,
		NudgeAfter:         DefaultNudgeAfter,
		LockTimeout:        DefaultLockTimeout,
		GapRepeatThreshold: DefaultGapRepeatThreshold,
		AckDelivered:       true,
		Role:               RoleHost,
		ListenAddr:         "127.0.0.1:0",
		BaudRate:           9600,
	}
}

// Validate checks the engine parameters.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return errors.New("device_id must not be empty")
	}
	if strings.Contains(c.DeviceID, ":") {
		return fmt.Errorf("device_id %q must not contain ':'", c.DeviceID)
	}
	if c.ChunkSize <= 0 {
		return errors.New("chunk_size must be positive")
	}
	if c.SendInterval <= 0 {
		return errors.New("send_interval must be positive")
	}
	if c.ParcelDelay < 0 {
		return errors.New("parcel_delay cannot be negative")
	}
	if c.QueueLimit <= 0 {
		return errors.New("queue_limit must be positive")
	}
	if c.ActivityWindow <= 0 {
		return errors.New("activity_window must be positive")
	}
	if c.StaleAfter < c.ActivityWindow {
		return errors.New("stale_after cannot be shorter than activity_window")
	}
	if c.JanitorInterval <= 0 {
		return errors.New("janitor_interval must be positive")
	}
	if c.NudgeAfter != 0 && c.NudgeAfter < c.ActivityWindow {
		return errors.New("nudge_after cannot be shorter than activity_window")
	}
	if c.LockTimeout <= 0 {
		return errors.New("lock_timeout must be positive")
	}
	if c.GapRepeatThreshold < 0 {
		return errors.New("gap_repeat_threshold cannot be negative")
	}
	if c.Loss < 0 || c.Loss >= 1 {
		return errors.New("loss must be in [0, 1)")
	}
	return nil
}
