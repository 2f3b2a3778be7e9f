// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and draco contributors
//
// SPDX-License-Identifier: Apache-2.0

package racadm

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// sshTransport drives an interactive shell on the iDRAC over SSH. The
// firmware CLI only behaves over a pty, and some firmware wraps long
// lines at the terminal width, so the window is made large enough that
// wrapping never corrupts command echo or tabular output.
type sshTransport struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser

	chunks  chan []byte
	readErr chan error
	buf     bytes.Buffer
}

const ptyWindowSize = 10000

// dialSSH opens the SSH session used as Transport. An authentication
// rejection maps to AuthError, anything else to ConnectionError.
func dialSSH(cfg Config) (Transport, error) {
	addr := net.JoinHostPort(cfg.Endpoint, strconv.Itoa(cfg.Port))
	sshConfig := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.Password),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = cfg.Password
				}
				return answers, nil
			}),
		},
		// iDRACs regenerate host keys on factory reset and are reached
		// over the management network only.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.ConnectTimeout,
	}

	client, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, &AuthError{Endpoint: addr, Err: err}
		}
		return nil, &ConnectionError{Endpoint: addr, Err: err}
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, &ConnectionError{Endpoint: addr, Err: err}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}
	if err := session.RequestPty("vt100", ptyWindowSize, ptyWindowSize, modes); err != nil {
		session.Close()
		client.Close()
		return nil, &ConnectionError{Endpoint: addr, Err: err}
	}

	stdin, err := session.StdinPipe()
	if err == nil {
		var stdout io.Reader
		stdout, err = session.StdoutPipe()
		if err == nil {
			if err = session.Shell(); err == nil {
				t := &sshTransport{
					client:  client,
					session: session,
					stdin:   stdin,
					chunks:  make(chan []byte, 16),
					readErr: make(chan error, 1),
				}
				go t.pump(stdout)
				return t, nil
			}
		}
	}
	session.Close()
	client.Close()
	return nil, &ConnectionError{Endpoint: addr, Err: err}
}

func (t *sshTransport) pump(r io.Reader) {
	for {
		chunk := make([]byte, 4096)
		n, err := r.Read(chunk)
		if n > 0 {
			t.chunks <- chunk[:n]
		}
		if err != nil {
			t.readErr <- err
			return
		}
	}
}

func (t *sshTransport) SendLine(line string) error {
	_, err := fmt.Fprintf(t.stdin, "%s\n", line)
	return err
}

// ReadUntil accumulates shell output until the prompt pattern matches,
// returning everything before the prompt. The prompt itself is
// consumed from the stream.
func (t *sshTransport) ReadUntil(prompt *regexp.Regexp, timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if loc := prompt.FindIndex(t.buf.Bytes()); loc != nil {
			out := string(t.buf.Next(loc[0]))
			t.buf.Next(loc[1] - loc[0])
			return out, nil
		}

		select {
		case chunk := <-t.chunks:
			t.buf.Write(chunk)
		case err := <-t.readErr:
			return "", &ConnectionError{Err: err}
		case <-deadline.C:
			return "", &TimeoutError{Op: "device prompt", Elapsed: timeout}
		}
	}
}

func (t *sshTransport) Close() error {
	t.session.Close()
	return t.client.Close()
}
