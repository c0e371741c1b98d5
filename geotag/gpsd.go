package geotag

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/decred/slog"
)

// watchCmd enables gpsd's JSON report stream.
const watchCmd = `?WATCH={"enable":true,"json":true};` + "\n"

// Gpsd is a Provider that queries a gpsd daemon over its TCP JSON protocol.
type Gpsd struct {
	addr string
	log  slog.Logger
}

// NewGpsd returns a provider talking to the gpsd daemon at the given
// address (usually "localhost:2947").
func NewGpsd(addr string, log slog.Logger) *Gpsd {
	if log == nil {
		log = slog.Disabled
	}
	return &Gpsd{addr: addr, log: log}
}

// tpvReport is the subset of gpsd's TPV class report used here. Lat and Lon
// are pointers because gpsd omits them while the receiver has no fix.
type tpvReport struct {
	Class string   `json:"class"`
	Mode  int      `json:"mode"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
}

// CurrentPosition dials gpsd and waits for the first TPV report carrying a
// 2D or better fix. The wait is bounded by ctx.
func (g *Gpsd) CurrentPosition(ctx context.Context) (Position, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", g.addr)
	if err != nil {
		return Position{}, fmt.Errorf("unable to dial gpsd: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when ctx is canceled.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return Position{}, err
		}
	}

	if _, err := conn.Write([]byte(watchCmd)); err != nil {
		return Position{}, fmt.Errorf("unable to enable gpsd watch: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var tpv tpvReport
		if err := json.Unmarshal(scanner.Bytes(), &tpv); err != nil {
			// gpsd emits several report classes; skip anything
			// that does not decode.
			continue
		}
		if tpv.Class != "TPV" || tpv.Mode < 2 || tpv.Lat == nil || tpv.Lon == nil {
			continue
		}

		g.log.Debugf("gpsd fix %f,%f (mode %d)", *tpv.Lat, *tpv.Lon, tpv.Mode)
		return Position{Lat: *tpv.Lat, Lon: *tpv.Lon}, nil
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return Position{}, ctx.Err()
		}
		return Position{}, fmt.Errorf("gpsd stream failed: %w", err)
	}
	return Position{}, errors.New("gpsd closed stream without a fix")
}
