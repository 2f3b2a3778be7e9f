// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package racadm

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"
)

// scriptedTransport feeds canned raw responses to the client. The last
// response is sticky so polling loops can run past the script's end.
type scriptedTransport struct {
	sent      []string
	responses []string
}

func (s *scriptedTransport) SendLine(line string) error {
	s.sent = append(s.sent, line)
	return nil
}

func (s *scriptedTransport) ReadUntil(prompt *regexp.Regexp, timeout time.Duration) (string, error) {
	if len(s.responses) == 0 {
		return "", &TimeoutError{Op: "script", Elapsed: timeout}
	}
	response := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return response, nil
}

func (s *scriptedTransport) Close() error { return nil }

// resp prefixes a response body with the echoed command line the real
// device always sends back.
func resp(body string) string {
	return "racadm echoed command\r\n" + body
}

func newTestClient(transport Transport) *Client {
	client := NewClient(Config{Endpoint: "testrac"})
	client.transport = transport
	client.sleep = func(time.Duration) {}
	return client
}

// fakeClock backs deterministic wait-timeout tests: sleeping advances
// the observed time.
type fakeClock struct {
	current time.Time
}

func (f *fakeClock) Now() time.Time        { return f.current }
func (f *fakeClock) Sleep(d time.Duration) { f.current = f.current.Add(d) }

type stub struct {
	prefix  string
	outputs []string
	err     error
}

type retryCall struct {
	command      string
	retry        int
	ignoreErrors bool
}

type jobRun struct {
	unit string
	now  bool
	wait bool
}

// fakeExecutor satisfies Executor with prefix-matched canned outputs.
// Output queues are sticky on their last element.
type fakeExecutor struct {
	t          *testing.T
	stubs      []*stub
	commands   []string
	retryCalls []retryCall
	jobRuns    []jobRun
	jobID      string
}

func newFakeExecutor(t *testing.T) *fakeExecutor {
	return &fakeExecutor{t: t, jobID: "JID_000000000001"}
}

func (f *fakeExecutor) on(prefix string, outputs ...string) *fakeExecutor {
	f.stubs = append(f.stubs, &stub{prefix: prefix, outputs: outputs})
	return f
}

func (f *fakeExecutor) onError(prefix string, err error) *fakeExecutor {
	f.stubs = append(f.stubs, &stub{prefix: prefix, err: err})
	return f
}

func (f *fakeExecutor) Exec(ctx context.Context, command string) (string, error) {
	f.commands = append(f.commands, command)
	for _, s := range f.stubs {
		if !strings.HasPrefix(command, s.prefix) {
			continue
		}
		if s.err != nil {
			return "", s.err
		}
		output := s.outputs[0]
		if len(s.outputs) > 1 {
			s.outputs = s.outputs[1:]
		}
		return output, nil
	}
	f.t.Fatalf("unexpected command: %s", command)
	return "", nil
}

func (f *fakeExecutor) ExecRetry(ctx context.Context, command string, retry int, ignoreErrors bool) (string, error) {
	f.retryCalls = append(f.retryCalls, retryCall{command: command, retry: retry, ignoreErrors: ignoreErrors})
	return f.Exec(ctx, command)
}

func (f *fakeExecutor) RunJobs(ctx context.Context, unit string, now, wait bool) (string, error) {
	f.jobRuns = append(f.jobRuns, jobRun{unit: unit, now: now, wait: wait})
	return f.jobID, nil
}

// commandsWithPrefix filters the recorded commands.
func (f *fakeExecutor) commandsWithPrefix(prefix string) []string {
	var matched []string
	for _, command := range f.commands {
		if strings.HasPrefix(command, prefix) {
			matched = append(matched, command)
		}
	}
	return matched
}
