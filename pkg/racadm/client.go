// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package racadm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	errorPrefix = "ERROR: "
	// LC062 is reported while a profile export job holds the
	// configuration lock. It clears on its own and is resent at no
	// retry cost.
	busyPrefix = "ERROR: LC062 "

	jobIDDelimiter = "Commit JID = "

	defaultRetry = 3
	loginRetries = 3
)

// promptPattern matches the two prompt forms the iDRAC CLI is known to
// present, depending on firmware generation.
var promptPattern = regexp.MustCompile(`(/admin1-> |racadm>>)`)

// Executor is the command surface the registry, storage, BIOS and
// inventory components consume.
type Executor interface {
	Exec(ctx context.Context, command string) (string, error)
	ExecRetry(ctx context.Context, command string, retry int, ignoreErrors bool) (string, error)
	RunJobs(ctx context.Context, unit string, now, wait bool) (string, error)
}

// Client executes racadm commands over a single interactive session.
// The session is established lazily on first use. The remote CLI is
// strictly request/response; callers must not issue commands
// concurrently against the same Client.
type Client struct {
	cfg       Config
	dial      Dialer
	transport Transport
	logger    zerolog.Logger

	// injected for deterministic tests
	sleep func(time.Duration)
	now   func() time.Time

	storage   *Storage
	bios      *Bios
	inventory *Inventory
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:    cfg.withDefaults(),
		dial:   dialSSH,
		logger: log.With().Str("endpoint", cfg.Endpoint).Logger(),
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// Storage returns the RAID orchestration component.
func (c *Client) Storage() *Storage {
	if c.storage == nil {
		c.storage = NewStorage(c)
	}
	return c.storage
}

// Inventory returns the hardware inventory component.
func (c *Client) Inventory() *Inventory {
	if c.inventory == nil {
		c.inventory = NewInventory(c)
	}
	return c.inventory
}

// Bios returns the BIOS configuration component, loading its
// registries from the device on first use.
func (c *Client) Bios(ctx context.Context) (*Bios, error) {
	if c.bios == nil {
		bios, err := NewBios(ctx, c)
		if err != nil {
			return nil, err
		}
		c.bios = bios
	}
	return c.bios, nil
}

// connect establishes the session if none is live: port probe, up to
// three login attempts, then an initial read to sync on the prompt.
// A rejected password is fatal immediately; other dial failures back
// off and retry.
func (c *Client) connect(ctx context.Context) error {
	if c.transport != nil {
		return nil
	}

	c.logger.Info().Msg("connecting to idrac")
	if err := probePort(c.cfg); err != nil {
		c.logger.Error().Err(err).Msg("management port is unreachable")
		return err
	}

	var lastErr error
	for attempt := 0; attempt < loginRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		transport, err := c.dial(c.cfg)
		if err == nil {
			c.transport = transport
			break
		}
		var authErr *AuthError
		if errors.As(err, &authErr) {
			c.logger.Error().Err(err).Msg("password refused")
			return err
		}
		lastErr = err
		c.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("login failed, retrying")
		c.sleep(c.cfg.AuthRetryDelay)
	}
	if c.transport == nil {
		return &ConnectionError{Endpoint: c.cfg.Endpoint, Err: lastErr}
	}

	if _, err := c.transport.ReadUntil(promptPattern, c.cfg.ReadTimeout); err != nil {
		c.transport.Close()
		c.transport = nil
		return &ConnectionError{Endpoint: c.cfg.Endpoint, Err: err}
	}
	c.logger.Info().Msg("connected to idrac")
	return nil
}

// Close terminates the session, if any. The next command reconnects.
func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	err := c.transport.Close()
	c.transport = nil
	return err
}

// Exec runs one racadm command with the default retry budget.
func (c *Client) Exec(ctx context.Context, command string) (string, error) {
	return c.ExecRetry(ctx, command, defaultRetry, false)
}

// ExecRetry runs one racadm command, resending up to retry times after
// error responses. Busy responses (LC062) are resent after a backoff
// without consuming the budget. With ignoreErrors the final error
// output is returned instead of a CommandError.
func (c *Client) ExecRetry(ctx context.Context, command string, retry int, ignoreErrors bool) (string, error) {
	if err := c.connect(ctx); err != nil {
		return "", err
	}

	attempts := retry + 1
	var output string
	for attempts > 0 {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		c.logger.Debug().Str("command", command).Msg("running command")
		if err := c.transport.SendLine("racadm " + command); err != nil {
			return "", &ConnectionError{Endpoint: c.cfg.Endpoint, Err: err}
		}
		raw, err := c.transport.ReadUntil(promptPattern, c.cfg.ReadTimeout)
		if err != nil {
			attempts--
			if attempts == 0 {
				return "", err
			}
			c.logger.Debug().Err(err).Msg("read failed, resending command")
			continue
		}
		output = stripEcho(raw)

		switch {
		case strings.HasPrefix(output, busyPrefix):
			c.logger.Debug().Msg("profile export job is running, waiting")
			c.sleep(c.cfg.BusyBackoff)
		case strings.HasPrefix(output, errorPrefix):
			attempts--
			if attempts > 0 {
				c.logger.Debug().Str("command", command).Msg("retrying command")
			}
		default:
			return output, nil
		}
	}

	if ignoreErrors {
		return output, nil
	}
	c.logger.Error().Str("command", command).Str("output", output).Msg("error running command")
	return "", &CommandError{Command: command, Output: output}
}

// stripEcho drops the echoed command line from a raw response.
func stripEcho(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")
	if len(lines) <= 1 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[1:], "\n"))
}

// ServerAction issues a power action (powerup, powerdown, powercycle,
// hardreset, graceshutdown).
func (c *Client) ServerAction(ctx context.Context, action string) (string, error) {
	return c.Exec(ctx, "serveraction "+action)
}

// Job is one asynchronous unit of work queued on the iDRAC.
type Job struct {
	ID              string
	Name            string
	Status          string
	StartTime       string
	Message         string
	PercentComplete int

	// every Key=Value attribute of the job view, keys lower-cased with
	// spaces replaced by underscores.
	Attributes map[string]string
}

const (
	JobStatusRunning   = "Running"
	JobStatusCompleted = "Completed"
	JobStatusFailed    = "Failed"
)

// Terminal reports whether the job reached a final status.
func (j Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// RunJobs commits the pending configuration jobs of a unit and returns
// the created job id. With wait, it polls the job until a terminal
// status, bounded by the configured job wait timeout.
func (c *Client) RunJobs(ctx context.Context, unit string, now, wait bool) (string, error) {
	c.logger.Info().Str("unit", unit).Msg("running unit pending jobs")
	command := "jobqueue create " + unit
	if now {
		command += " --realtime"
	}
	output, err := c.Exec(ctx, command)
	if err != nil {
		return "", err
	}

	_, rest, found := strings.Cut(output, jobIDDelimiter)
	if !found {
		c.logger.Error().Str("output", output).Msg("no job id in jobqueue output")
		return "", &ParseError{What: "jobqueue create output", Detail: "missing " + strings.TrimSpace(jobIDDelimiter)}
	}
	jid := strings.TrimSpace(rest)

	if wait {
		if _, err := c.WaitJob(ctx, jid); err != nil {
			return jid, err
		}
	}
	return jid, nil
}

// WaitJob polls a job until Completed or Failed, sleeping the poll
// interval between polls. It returns a TimeoutError once the job wait
// timeout elapses, or earlier when the context is done.
func (c *Client) WaitJob(ctx context.Context, jid string) (Job, error) {
	c.logger.Info().Str("jid", jid).Msg("waiting job completion")
	start := c.now()
	for {
		job, err := c.GetJob(ctx, jid)
		if err != nil {
			return Job{}, err
		}
		if job.Terminal() {
			return job, nil
		}
		if err := ctx.Err(); err != nil {
			return job, err
		}
		if c.cfg.JobWaitTimeout > 0 {
			if elapsed := c.now().Sub(start); elapsed >= c.cfg.JobWaitTimeout {
				return job, &TimeoutError{Op: "job " + jid, Elapsed: elapsed}
			}
		}
		c.sleep(c.cfg.JobPollInterval)
	}
}

// GetJob fetches and parses one job view. The response has a fixed
// shape: a dashed header, a [Job ID=...] line, Key=Value lines, and a
// dashed footer.
func (c *Client) GetJob(ctx context.Context, jid string) (Job, error) {
	output, err := c.Exec(ctx, "jobqueue view -i "+jid)
	if err != nil {
		return Job{}, err
	}

	lines := strings.Split(output, "\n")
	if len(lines) < 4 {
		c.logger.Error().Str("output", output).Msg("malformed job view output")
		return Job{}, &ParseError{What: "job view output", Detail: "too few lines"}
	}

	attrs := make(map[string]string)
	for _, line := range lines[2 : len(lines)-1] {
		key, value, found := strings.Cut(line, "=")
		if !found {
			c.logger.Error().Str("output", output).Msg("malformed job view output")
			return Job{}, &ParseError{What: "job view output", Detail: "line without '='"}
		}
		key = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
		attrs[key] = strings.TrimSpace(value)
	}

	job := Job{
		ID:         jid,
		Name:       attrs["job_name"],
		Status:     attrs["status"],
		StartTime:  trimBrackets(attrs["start_time"]),
		Message:    trimBrackets(attrs["message"]),
		Attributes: attrs,
	}
	if percent, err := strconv.Atoi(trimBrackets(attrs["percent_complete"])); err == nil {
		job.PercentComplete = percent
	}
	return job, nil
}

// trimBrackets removes the [...] the job view wraps some values in.
func trimBrackets(value string) string {
	value = strings.TrimPrefix(value, "[")
	return strings.TrimSuffix(value, "]")
}

// SELEvent is one normalized system event log record.
type SELEvent struct {
	Date     string
	Time     string
	Source   string
	Severity string
	Message  string
}

func (e SELEvent) String() string {
	return fmt.Sprintf("%s %s %s %s %s", e.Date, e.Time, e.Source, e.Severity, e.Message)
}

// SELScanner iterates the system event log lazily in the manner of
// bufio.Scanner.
type SELScanner struct {
	lines  []string
	filter map[string]bool
	index  int
	event  SELEvent
	err    error
}

// SEL re-reads the system event log and returns a scanner over its
// records, optionally filtered to the given severities.
func (c *Client) SEL(ctx context.Context, severities ...string) (*SELScanner, error) {
	output, err := c.Exec(ctx, "getsel -o")
	if err != nil {
		return nil, err
	}
	scanner := &SELScanner{lines: strings.Split(output, "\n")}
	if len(severities) > 0 {
		scanner.filter = make(map[string]bool, len(severities))
		for _, severity := range severities {
			scanner.filter[severity] = true
		}
	}
	return scanner, nil
}

// Next advances to the next matching record. It returns false at the
// end of the log or on a malformed record, distinguished by Err.
func (s *SELScanner) Next() bool {
	for s.index < len(s.lines) {
		line := strings.TrimSpace(s.lines[s.index])
		s.index++
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			s.err = &ParseError{What: "sel record", Detail: fmt.Sprintf("%d fields in %q", len(fields), line)}
			return false
		}
		if s.filter != nil && !s.filter[fields[3]] {
			continue
		}
		s.event = SELEvent{
			Date:     fields[0],
			Time:     fields[1],
			Source:   fields[2],
			Severity: fields[3],
			Message:  strings.Join(fields[4:], " "),
		}
		return true
	}
	return false
}

// Event returns the record produced by the last successful Next.
func (s *SELScanner) Event() SELEvent { return s.event }

// Err returns the first parse failure hit by Next, if any.
func (s *SELScanner) Err() error { return s.err }
