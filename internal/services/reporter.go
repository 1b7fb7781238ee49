package services

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/benmeehan/tms-heartbeat/internal/models"
	"github.com/benmeehan/tms-heartbeat/pkg/dds"
)

// Reporter prints the human-readable console lines of both roles. These
// lines are written regardless of the configured log level.
type Reporter interface {
	Banner(title, version string)
	DeviceID(id string)
	Created(entity string)
	Topic(typeName string)
	Starting(role, deviceID string)

	Sent(sequenceNumber uint32)
	WriteFailed(err error)
	WriterEvent(ev dds.StatusEvent)

	Received(hb models.Heartbeat)
	ReadFailed(err error)
	ReaderEvent(ev dds.StatusEvent)
}

const bannerWidth = 75

// ConsoleReporter writes report lines to an io.Writer, stdout by default.
type ConsoleReporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleReporter creates a reporter writing to out, or stdout when out
// is nil.
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleReporter{out: out}
}

func (r *ConsoleReporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func bannerLine(text string) string {
	inner := bannerWidth - 6
	if len(text) > inner {
		text = text[:inner]
	}
	left := (inner - len(text)) / 2
	right := inner - len(text) - left
	return "===" + strings.Repeat(" ", left) + text + strings.Repeat(" ", right) + "==="
}

func (r *ConsoleReporter) Banner(title, version string) {
	rule := strings.Repeat("=", bannerWidth)
	blank := bannerLine("")
	r.printf("%s\n%s\n%s\n%s\n%s\n", rule, blank, bannerLine(title+" "+version), blank, rule)
}

func (r *ConsoleReporter) DeviceID(id string) {
	r.printf("TMS DEVICE ID = %s\n\n", id)
}

func (r *ConsoleReporter) Created(entity string) {
	r.printf("Created the %s\n", entity)
}

func (r *ConsoleReporter) Topic(typeName string) {
	r.printf("DDS TMS TOPIC = %q\n", typeName)
}

func (r *ConsoleReporter) Starting(role, deviceID string) {
	r.printf("\nSTARTING TMS %s - TMS deviceId = %q\n\n", strings.ToUpper(role), deviceID)
}

func (r *ConsoleReporter) Sent(sequenceNumber uint32) {
	r.printf("Sent TMS Heartbeat sequenceNumber %d\n", sequenceNumber)
}

func (r *ConsoleReporter) WriteFailed(err error) {
	var writeErr *dds.WriteError
	if errors.As(err, &writeErr) {
		err = writeErr.Err
	}
	r.printf("DataWriter write failed: %v\n", err)
}

func (r *ConsoleReporter) WriterEvent(ev dds.StatusEvent) {
	r.printf("DataWriter event: %s\n", ev)
}

func (r *ConsoleReporter) Received(hb models.Heartbeat) {
	r.printf("Received TMS Heartbeat: deviceId %s, sequenceNumber %d\n", hb.DeviceID, hb.SequenceNumber)
}

func (r *ConsoleReporter) ReadFailed(err error) {
	r.printf("DataReader failed: %v\n", err)
}

func (r *ConsoleReporter) ReaderEvent(ev dds.StatusEvent) {
	r.printf("DataReader event: %s\n", ev)
}
