// Package protocol defines the reverse-engineered tachograph command set
// as a swappable dialect: opcodes, channel UUIDs, response-classification
// rules, end-of-transmission rules, and timing. Everything here is plain
// data and pure functions; the session engine interprets it.
package protocol

import "time"

// Nordic UART Service UUIDs used by the known adapter hardware.
const (
	NUSServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	NUSWriteUUID   = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	NUSNotifyUUID  = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// Command is a single device command: raw opcode bytes plus a label used
// in logs and probe reports.
type Command struct {
	Label  string
	Opcode []byte
}

// CommandSet holds the opcodes of one protocol dialect.
type CommandSet struct {
	InitSession         Command
	CloseSession        Command
	SetDateRange        Command // opcode prefix, followed by a 12-byte range
	DownloadVehicleUnit Command
	DownloadDriverCard  Command
	GetStatus           Command
}

// Dialect is a concrete protocol variant for one device family. The
// engine is dialect-parametric: supporting a new adapter means supplying
// a new Dialect value, not new code.
type Dialect struct {
	Name string

	ServiceUUID    string
	WriteCharUUID  string
	NotifyCharUUID string

	Commands CommandSet

	// AuthRules classify the first response to a credential write,
	// evaluated in order, first match wins.
	AuthRules []ResponseRule
	// SilenceVerdict applies when the device never answers the
	// credential write within AuthTimeout. The known hardware often
	// accepts credentials without confirming, so the default is
	// optimistic.
	SilenceVerdict Verdict
	// BlindWriteAuthenticates controls the degraded path taken when no
	// notify channel exists at all: the credential is still written, and
	// this flag decides whether the session counts as authenticated.
	BlindWriteAuthenticates bool

	// EOTRules detect transfer completion, evaluated per packet.
	EOTRules []EOTRule

	AuthTimeout     time.Duration
	DownloadTimeout time.Duration
	ProbeWindow     time.Duration
}

// Default returns the dialect for the known Nordic-UART-style adapter.
func Default() Dialect {
	return Dialect{
		Name:           "nus",
		ServiceUUID:    NUSServiceUUID,
		WriteCharUUID:  NUSWriteUUID,
		NotifyCharUUID: NUSNotifyUUID,
		Commands: CommandSet{
			InitSession:         Command{Label: "init-session", Opcode: []byte{0x81, 0x00}},
			CloseSession:        Command{Label: "close-session", Opcode: []byte{0x82, 0x00}},
			SetDateRange:        Command{Label: "set-date-range", Opcode: []byte{0x83, 0x00}},
			DownloadVehicleUnit: Command{Label: "download-vehicle-unit", Opcode: []byte{0x84, 0x00}},
			DownloadDriverCard:  Command{Label: "download-driver-card", Opcode: []byte{0x85, 0x00}},
			GetStatus:           Command{Label: "get-status", Opcode: []byte{0x80, 0x01}},
		},
		AuthRules:       DefaultAuthRules(),
		SilenceVerdict:  VerdictAssumeSuccess,
		EOTRules:        DefaultEOTRules(),
		AuthTimeout:     3 * time.Second,
		DownloadTimeout: time.Minute,
		ProbeWindow:     2 * time.Second,
	}
}

// ProbeBattery returns the ordered candidate commands sent by the
// diagnostic probe when mapping an unknown device.
func ProbeBattery() []Command {
	return []Command{
		{Label: "probe-00", Opcode: []byte{0x00}},
		{Label: "probe-01", Opcode: []byte{0x01}},
		{Label: "probe-status", Opcode: []byte{0x80, 0x01}},
		{Label: "probe-init", Opcode: []byte{0x81, 0x00}},
		{Label: "probe-vu", Opcode: []byte{0x84, 0x00}},
		{Label: "probe-card", Opcode: []byte{0x85, 0x00}},
		{Label: "probe-ff", Opcode: []byte{0xFF, 0x00}},
		{Label: "probe-aa", Opcode: []byte{0xAA}},
		{Label: "probe-10", Opcode: []byte{0x10}},
	}
}
