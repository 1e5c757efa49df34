// Package influx records per-account points and cycle telemetry in InfluxDB.
package influx

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/bardlex/stobixd/internal/orchestrator"
	"github.com/bardlex/stobixd/internal/pipeline"
	"github.com/bardlex/stobixd/pkg/errors"
	"github.com/bardlex/stobixd/pkg/log"
)

// Measurement names
const (
	MeasurementAccount = "account_run"
	MeasurementCycle   = "cycle"
)

// PointWriter is the part of api.WriteAPI the recorder uses
type PointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Client wraps the InfluxDB client and its non-blocking write API
type Client struct {
	client   influxdb2.Client
	writeAPI PointWriter
	service  string
	logger   *log.Logger
}

// NewClient connects to InfluxDB and checks its health
func NewClient(cfg *Config, service string, logger *log.Logger) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := checkHealth(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := newClient(writeAPI, service, logger)
	c.client = client

	// Async write failures only surface on this channel
	go func() {
		for err := range writeAPI.Errors() {
			c.logger.WithError(err).Warn("influx write failed")
		}
	}()

	return c, nil
}

func newClient(w PointWriter, service string, logger *log.Logger) *Client {
	return &Client{
		writeAPI: w,
		service:  service,
		logger:   logger.WithComponent("influx"),
	}
}

func checkHealth(ctx context.Context, client influxdb2.Client) error {
	health, err := client.Health(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "influx_health",
			"failed to check InfluxDB health")
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return errors.New(errors.ErrorTypeInternal, "influx_health",
			"InfluxDB health check failed").WithContext("message", msg)
	}
	return nil
}

// Health checks InfluxDB connectivity
func (c *Client) Health(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return checkHealth(ctx, c.client)
}

// AccountDone writes one point per processed account
func (c *Client) AccountDone(_ context.Context, r pipeline.AccountResult) {
	c.writeAPI.WritePoint(AccountPoint(c.service, r, time.Now()))
}

// CycleDone writes the cycle summary and flushes pending points
func (c *Client) CycleDone(_ context.Context, report orchestrator.CycleReport) {
	c.writeAPI.WritePoint(CyclePoint(c.service, report))
	c.writeAPI.Flush()
}

// Close flushes pending writes and closes the connection
func (c *Client) Close() {
	c.writeAPI.Flush()
	if c.client != nil {
		c.client.Close()
	}
}

// AccountPoint builds the account_run point. The points field is present
// only when the balance was read.
func AccountPoint(service string, r pipeline.AccountResult, at time.Time) *write.Point {
	tags := map[string]string{
		"service": service,
		"wallet":  r.Wallet,
		"success": strconv.FormatBool(r.Succeeded()),
		"stage":   string(r.Stage),
	}
	if r.Err != nil {
		tags["error_type"] = string(errors.TypeOf(r.Err))
	}

	fields := map[string]interface{}{
		"cycle":          r.Cycle,
		"tasks_claimed":  r.Tasks.Claimed,
		"tasks_failed":   r.Tasks.Failed,
		"mining_started": r.Mining.Started,
		"mined_amount":   r.Mining.Amount,
		"duration_ms":    r.Duration.Milliseconds(),
	}
	if r.PointsKnown {
		fields["points"] = r.Points
	}

	return write.NewPoint(MeasurementAccount, tags, fields, at)
}

// CyclePoint builds the cycle summary point
func CyclePoint(service string, report orchestrator.CycleReport) *write.Point {
	total := 0.0
	for _, r := range report.Results {
		if r.PointsKnown {
			total += r.Points
		}
	}

	fields := map[string]interface{}{
		"cycle":        report.Cycle,
		"accounts":     report.Total,
		"succeeded":    report.Succeeded,
		"failed":       report.Failed,
		"skipped":      report.Skipped,
		"lease_lost":   report.LeaseLost,
		"total_points": total,
		"duration_ms":  report.Duration.Milliseconds(),
	}

	at := report.Started
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(MeasurementCycle, map[string]string{"service": service}, fields, at)
}
