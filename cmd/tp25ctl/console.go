package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chaz8081/tp25ctl/internal/ble/protocol"
	"github.com/chaz8081/tp25ctl/internal/controller"
)

const consoleHelp = `commands:
  toggle                  switch between celsius and fahrenheit
  celsius | fahrenheit    set the display unit
  report [probe]          read alarm thresholds (all probes if omitted)
  set <probe> <max> [min] set an upper limit, or a range when min is given
  unset <probe>           clear the alarm threshold
  ack                     silence a sounding alarm
  raw <hex>               send raw bytes, checksum verified
  raw! <hex>              send raw bytes without checksum verification
  state                   print the device state
  log                     print frames exchanged since the last "log"
  help                    show this text
  quit                    disconnect and exit`

var errQuit = errors.New("quit")

// parseRequest turns one console line into a controller request.
func parseRequest(line string) (controller.Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "toggle":
		return controller.ToggleTempMode{}, nil
	case "celsius", "c":
		return controller.SetTempMode{Celsius: true}, nil
	case "fahrenheit", "f":
		return controller.SetTempMode{Celsius: false}, nil
	case "ack":
		return controller.AckAlarm{}, nil
	case "report":
		if len(args) == 0 {
			return controller.ReportAllProfiles{}, nil
		}
		p, err := parseProbe(args[0])
		if err != nil {
			return nil, err
		}
		return controller.ReportProfile{Probe: p}, nil
	case "set":
		if len(args) < 2 || len(args) > 3 {
			return nil, fmt.Errorf("usage: set <probe> <max> [min]")
		}
		p, err := parseProbe(args[0])
		if err != nil {
			return nil, err
		}
		max, err := parseDegrees(args[1])
		if err != nil {
			return nil, err
		}
		th := protocol.UpperLimit(max)
		if len(args) == 3 {
			min, err := parseDegrees(args[2])
			if err != nil {
				return nil, err
			}
			th = protocol.RangeLimit(min, max)
		}
		return controller.SetProfile{Probe: p, Threshold: th}, nil
	case "unset":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: unset <probe>")
		}
		p, err := parseProbe(args[0])
		if err != nil {
			return nil, err
		}
		return controller.SetProfile{Probe: p, Threshold: protocol.Unset()}, nil
	case "raw", "raw!":
		raw, err := protocol.ParseHexCommand(strings.Join(args, ""))
		if err != nil {
			return nil, err
		}
		return controller.CustomCommand{Raw: raw, SkipChecksum: cmd == "raw!"}, nil
	default:
		return nil, fmt.Errorf("unknown command %q, try \"help\"", cmd)
	}
}

func parseProbe(s string) (protocol.Probe, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > protocol.NumProbes {
		return 0, fmt.Errorf("probe must be 1..%d, got %q", protocol.NumProbes, s)
	}
	return protocol.Probe(n), nil
}

func parseDegrees(s string) (protocol.Temperature, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > protocol.MaxTemperature.Degrees() {
		return 0, fmt.Errorf("temperature must be 0..%s, got %q", protocol.MaxTemperature, s)
	}
	return protocol.TemperatureFromDegrees(f), nil
}

// console reads commands from in and reports to out until in ends or ctx is
// done. It returns errQuit when the user asks to exit.
type console struct {
	mgr     *controller.Manager
	out     io.Writer
	lastSeq uint64
}

func (c *console) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if err := c.exec(ctx, sc.Text()); err != nil {
			if errors.Is(err, errQuit) {
				return err
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return sc.Err()
}

func (c *console) exec(ctx context.Context, line string) error {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "quit", "exit":
		return errQuit
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
		return nil
	case "state":
		fmt.Fprintln(c.out, c.mgr.Snapshot())
		return nil
	case "log":
		for _, e := range c.mgr.Transfers().Since(c.lastSeq) {
			fmt.Fprintln(c.out, formatTransfer(e))
			c.lastSeq = e.Sequence
		}
		return nil
	}

	req, err := parseRequest(line)
	if err != nil || req == nil {
		return err
	}
	return c.mgr.Submit(ctx, req)
}

func formatTransfer(e controller.TransferEntry) string {
	prefix := fmt.Sprintf("#%d %s %s", e.Sequence, e.Time.Format("15:04:05.000"), e.Direction)
	switch {
	case e.Command != nil:
		return fmt.Sprintf("%s %s [%x]", prefix, e.Command, e.Command.Raw)
	case e.Notification != nil:
		return fmt.Sprintf("%s %s [%x]", prefix, e.Notification, e.Notification.Raw)
	default:
		return prefix
	}
}
