// Package remote drives the slideshow from a serial-attached remote control
// (an IR receiver or button board that prints one command per line).
//
// Commands are case-insensitive:
//
//	NEXT | PREV | PAUSE (toggle) | PLAY | STOP | FULLSCREEN | SETTINGS
//	GOTO <index>
//	UNLOCK <password>
//	STATUS
//
// Key names sent by common receivers are accepted as aliases (RIGHT, LEFT,
// SPACE, F). Each command gets one reply line: OK, PENDING <action>,
// STATE <state> <index>/<count> or ERR <code> <message>.
package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/brianhealey/slidepi/internal/models"
)

// Target is the part of the controller the remote drives.
type Target interface {
	Attempt(action string) (models.ActionResult, error)
	Play() (models.ActionResult, error)
	Pause() (models.ActionResult, error)
	GoTo(index int) (models.State, error)
	Unlock(password string) (models.State, error)
	State() models.State
}

// aliases maps receiver key names to commands.
var aliases = map[string]string{
	"RIGHT": "NEXT",
	"LEFT":  "PREV",
	"SPACE": "PAUSE",
	"F":     "FULLSCREEN",
	"S":     "SETTINGS",
}

// maxLine bounds a single command line.
const maxLine = 256

// Options configures a Remote.
type Options struct {
	Port  string // e.g. /dev/ttyUSB0
	Baud  int    // defaults to 9600
	Retry time.Duration
}

// openPort is a variable so tests can replace the serial device.
var openPort = func(name string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// Remote reads commands from a serial port and forwards them to a Target.
type Remote struct {
	target Target
	port   string
	baud   int
	retry  time.Duration
}

// New creates a Remote for target.
func New(target Target, opts Options) *Remote {
	r := &Remote{target: target, port: opts.Port, baud: opts.Baud, retry: opts.Retry}
	if r.baud == 0 {
		r.baud = 9600
	}
	if r.retry == 0 {
		r.retry = 5 * time.Second
	}
	return r
}

// Run opens the port and serves it until ctx is cancelled, reopening it after
// errors (the receiver may be unplugged and plugged back in).
func (r *Remote) Run(ctx context.Context) {
	for {
		port, err := openPort(r.port, r.baud)
		if err != nil {
			slog.Warn("remote: cannot open serial port", "port", r.port, "err", err)
		} else {
			slog.Info("remote: listening", "port", r.port, "baud", r.baud)
			stop := context.AfterFunc(ctx, func() { port.Close() })
			err = r.Serve(ctx, port, port)
			stop()
			port.Close()
			if ctx.Err() != nil {
				return
			}
			slog.Warn("remote: serial port closed", "port", r.port, "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.retry):
		}
	}
}

// errLineTooLong reports a command line longer than maxLine.
var errLineTooLong = errors.New("line too long")

// Serve handles command lines from in until EOF or ctx is done, writing one
// reply line per command to out. Over-long lines are answered with an error
// and skipped.
func (r *Remote) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	br := bufio.NewReaderSize(in, maxLine)
	for {
		raw, err := readLine(br)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var reply string
		switch {
		case errors.Is(err, errLineTooLong):
			slog.Warn("remote: dropped over-long line", "limit", maxLine)
			reply = "ERR BAD_REQUEST line too long"
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		default:
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}
			reply = r.Handle(line)
		}
		if _, err := fmt.Fprintln(out, reply); err != nil {
			return err
		}
	}
}

// readLine returns the next line. A line that does not fit in the reader's
// buffer is consumed through its newline and errLineTooLong is returned.
func readLine(br *bufio.Reader) (string, error) {
	frag, err := br.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = br.ReadSlice('\n')
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return "", errLineTooLong
	}
	if errors.Is(err, io.EOF) && len(frag) > 0 {
		return string(frag), nil
	}
	return string(frag), err
}

// Handle executes one command line and returns the reply.
func (r *Remote) Handle(line string) string {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	cmd = strings.ToUpper(cmd)
	if alias, ok := aliases[cmd]; ok {
		cmd = alias
	}
	slog.Debug("remote: command", "cmd", cmd)

	switch cmd {
	case "NEXT", "PREV", "PAUSE", "FULLSCREEN", "SETTINGS":
		return actionReply(r.target.Attempt(strings.ToLower(cmd)))
	case "PLAY":
		return actionReply(r.target.Play())
	case "STOP":
		return actionReply(r.target.Pause())
	case "GOTO":
		index, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return errReply(models.ErrBadRequest("GOTO needs a slide index"))
		}
		if _, err := r.target.GoTo(index); err != nil {
			return errReply(err)
		}
		return "OK"
	case "UNLOCK":
		if _, err := r.target.Unlock(arg); err != nil {
			return errReply(err)
		}
		return "OK"
	case "STATUS":
		return statusReply(r.target.State())
	default:
		return errReply(models.ErrBadRequest("unknown command " + strconv.Quote(cmd)))
	}
}

func actionReply(res models.ActionResult, err error) string {
	if err != nil {
		return errReply(err)
	}
	if res.Pending != "" {
		return "PENDING " + res.Pending
	}
	return "OK"
}

func statusReply(st models.State) string {
	index := -1
	if st.Playback.CurrentIndex != nil {
		index = *st.Playback.CurrentIndex
	}
	locked := ""
	if st.Lock.Locked {
		locked = " locked"
	}
	return fmt.Sprintf("STATE %s %d/%d%s", st.Playback.State, index, st.Playback.Count, locked)
}

func errReply(err error) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return "ERR " + appErr.Code + " " + appErr.Message
	}
	return "ERR INTERNAL " + err.Error()
}
