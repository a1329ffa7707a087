package location

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"time"

	"go.uber.org/zap"

	"securelc/errs"
)

// gpsdWatch enables gpsd's JSON report stream.
const gpsdWatch = `?WATCH={"enable":true,"json":true};` + "\n"

const gpsdDialTimeout = 5 * time.Second

// GpsdProvider sources fixes from a local gpsd daemon. Field laptops in
// the fleet carry a USB GPS receiver managed by gpsd on the default
// port.
type GpsdProvider struct {
	addr string
	log  *zap.SugaredLogger
}

// NewGpsdProvider creates a provider for the daemon at addr
// (host:port).
func NewGpsdProvider(addr string, logger *zap.SugaredLogger) *GpsdProvider {
	return &GpsdProvider{addr: addr, log: logger}
}

// tpvReport is gpsd's time-position-velocity report. Mode 2 is a 2D
// fix, mode 3 a 3D fix.
type tpvReport struct {
	Class string    `json:"class"`
	Mode  int       `json:"mode"`
	Time  time.Time `json:"time"`
	Lat   float64   `json:"lat"`
	Lon   float64   `json:"lon"`
	Alt   float64   `json:"alt"`
	Track float64   `json:"track"`
	Speed float64   `json:"speed"`
	Eph   float64   `json:"eph"`
	Epx   float64   `json:"epx"`
	Epy   float64   `json:"epy"`
}

// RequestPermissions probes the daemon. An unreachable daemon is a
// denial, not an error: the operator has not granted the agent a
// position source. Background sampling is always available because the
// daemon runs independently of the agent's foreground state.
func (p *GpsdProvider) RequestPermissions(ctx context.Context) (Permissions, error) {
	conn, err := net.DialTimeout("tcp", p.addr, gpsdDialTimeout)
	if err != nil {
		p.log.Warnf("⚠️  gpsd not reachable at %s: %v", p.addr, err)
		return Permissions{}, nil
	}
	_ = conn.Close()
	return Permissions{Foreground: true, Background: true}, nil
}

// Current acquires a one-shot fix.
func (p *GpsdProvider) Current(ctx context.Context) (Fix, error) {
	conn, err := p.open(ctx)
	if err != nil {
		return Fix{}, err
	}
	defer conn.Close()

	deadline := time.Now().Add(15 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if fix, ok := parseTPV(scanner.Bytes()); ok {
			return fix, nil
		}
	}
	return Fix{}, fmt.Errorf("no fix from gpsd: %w", errs.ErrUpstream)
}

// Watch streams fixes, thinned to the interval/distance policy, until
// ctx is canceled.
func (p *GpsdProvider) Watch(ctx context.Context, opts WatchOptions) (<-chan Fix, error) {
	conn, err := p.open(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Fix)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		var (
			lastEmit time.Time
			lastFix  Fix
			haveLast bool
		)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fix, ok := parseTPV(scanner.Bytes())
			if !ok {
				continue
			}
			moved := haveLast && DistanceMeters(lastFix.Latitude, lastFix.Longitude, fix.Latitude, fix.Longitude) >= opts.MinDistance
			due := !haveLast || time.Since(lastEmit) >= opts.Interval
			if !moved && !due {
				continue
			}
			select {
			case out <- fix:
				lastEmit = time.Now()
				lastFix = fix
				haveLast = true
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() == nil {
			p.log.Warnf("⚠️  gpsd stream ended: %v", scanner.Err())
		}
	}()
	return out, nil
}

func (p *GpsdProvider) open(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: gpsdDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return nil, fmt.Errorf("connect gpsd at %s: %w", p.addr, errs.ErrUnsupported)
	}
	if _, err := conn.Write([]byte(gpsdWatch)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable gpsd watch: %w", errs.ErrUpstream)
	}
	return conn, nil
}

// parseTPV extracts a usable fix from one report line.
func parseTPV(line []byte) (Fix, bool) {
	var tpv tpvReport
	if err := json.Unmarshal(line, &tpv); err != nil {
		return Fix{}, false
	}
	if tpv.Class != "TPV" || tpv.Mode < 2 {
		return Fix{}, false
	}
	accuracy := tpv.Eph
	if accuracy == 0 {
		accuracy = math.Max(tpv.Epx, tpv.Epy)
	}
	ts := tpv.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return Fix{
		Latitude:  tpv.Lat,
		Longitude: tpv.Lon,
		Accuracy:  accuracy,
		Altitude:  tpv.Alt,
		Heading:   tpv.Track,
		Speed:     tpv.Speed,
		Timestamp: ts,
	}, true
}
