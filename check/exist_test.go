package check_test

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/verimail/check"
	"github.com/optimode/verimail/internal/parse"
	"github.com/optimode/verimail/internal/smtppool"
	"github.com/optimode/verimail/types"
)

// fakeMailServer simulates a mail exchanger on one end of a net.Pipe.
func fakeMailServer(server net.Conn, banner string, responses map[string]string) {
	defer func() { _ = server.Close() }()

	_, _ = fmt.Fprintf(server, "%s\r\n", banner)

	buf := make([]byte, 4096)
	for {
		n, err := server.Read(buf)
		if err != nil {
			return
		}
		cmd := string(buf[:n])

		for prefix, resp := range responses {
			if strings.HasPrefix(cmd, prefix) {
				_, _ = fmt.Fprintf(server, "%s\r\n", resp)
				break
			}
		}

		if strings.HasPrefix(cmd, "QUIT") {
			_, _ = fmt.Fprintf(server, "221 Bye\r\n")
			return
		}
	}
}

func newTestExistenceChecker(records []*net.MX, dial func(string, string, time.Duration) (net.Conn, error)) (*check.ExistenceChecker, func()) {
	pool := smtppool.New(smtppool.Config{
		HeloDomain:      "probe.test",
		MailFrom:        "verify@probe.test",
		ConnectTimeout:  5 * time.Second,
		CommandTimeout:  5 * time.Second,
		Port:            "25",
		MaxConnsPerHost: 2,
		Dial:            dial,
	})

	checker := check.NewExistenceChecker(check.ExistConfig{
		HeloDomain: "probe.test",
		MailFrom:   "verify@probe.test",
		MaxMXHosts: 1,
	}, func(_ context.Context, _ string) ([]*net.MX, error) {
		return records, nil
	}, pool)

	cleanup := func() { _ = pool.Close() }
	return checker, cleanup
}

func pipeDial(responses map[string]string) func(string, string, time.Duration) (net.Conn, error) {
	return func(network, address string, timeout time.Duration) (net.Conn, error) {
		client, server := net.Pipe()
		go fakeMailServer(server, "220 mx.example.com ESMTP", responses)
		return client, nil
	}
}

func TestExistenceChecker_Accepted(t *testing.T) {
	records := []*net.MX{{Host: "mx.example.com.", Pref: 10}}
	c, cleanup := newTestExistenceChecker(records, pipeDial(map[string]string{
		"EHLO": "250 OK", "RSET": "250 OK",
		"MAIL FROM": "250 OK", "RCPT TO": "250 OK",
	}))
	defer cleanup()

	result := c.Check(context.Background(), parse.NewAddress("test@example.com"))

	assert.Equal(t, types.StageExistence, result.Stage)
	assert.True(t, result.Passed)
	assert.True(t, result.Definitive)
	assert.Equal(t, "mx.example.com", result.Host)
}

func TestExistenceChecker_RejectedIsDefinitive(t *testing.T) {
	records := []*net.MX{{Host: "mx.example.com.", Pref: 10}}
	c, cleanup := newTestExistenceChecker(records, pipeDial(map[string]string{
		"EHLO": "250 OK", "MAIL FROM": "250 OK",
		"RCPT TO": "550 User not found",
	}))
	defer cleanup()

	result := c.Check(context.Background(), parse.NewAddress("test@example.com"))

	assert.False(t, result.Passed)
	assert.True(t, result.Definitive)
	assert.Equal(t, 550, result.Code)
	assert.Contains(t, result.Reason, "mailbox does not exist")
}

func TestExistenceChecker_ConnectionErrorIsIndeterminate(t *testing.T) {
	records := []*net.MX{{Host: "mx.example.com.", Pref: 10}}
	c, cleanup := newTestExistenceChecker(records, func(network, address string, timeout time.Duration) (net.Conn, error) {
		return nil, fmt.Errorf("connection refused")
	})
	defer cleanup()

	result := c.Check(context.Background(), parse.NewAddress("test@example.com"))

	assert.False(t, result.Passed)
	assert.False(t, result.Definitive) // unknown, not a negative
	assert.Contains(t, result.Reason, "could not verify mailbox existence")
}

func TestExistenceChecker_TemporaryFailureIsIndeterminate(t *testing.T) {
	records := []*net.MX{{Host: "mx.example.com.", Pref: 10}}
	c, cleanup := newTestExistenceChecker(records, pipeDial(map[string]string{
		"EHLO": "250 OK", "MAIL FROM": "250 OK",
		"RCPT TO": "450 Try again later",
	}))
	defer cleanup()

	result := c.Check(context.Background(), parse.NewAddress("test@example.com"))

	assert.False(t, result.Passed)
	assert.False(t, result.Definitive)
	assert.Contains(t, result.Reason, "could not verify mailbox existence")
}

func TestExistenceChecker_MXLookupFailureIsIndeterminate(t *testing.T) {
	pool := smtppool.New(smtppool.Config{
		HeloDomain:     "probe.test",
		MailFrom:       "verify@probe.test",
		ConnectTimeout: time.Second,
		CommandTimeout: time.Second,
		Port:           "25",
	})
	defer func() { _ = pool.Close() }()

	c := check.NewExistenceChecker(check.ExistConfig{
		HeloDomain: "probe.test",
		MailFrom:   "verify@probe.test",
		MaxMXHosts: 1,
	}, func(_ context.Context, _ string) ([]*net.MX, error) {
		return nil, &net.DNSError{Err: "no such host"}
	}, pool)

	result := c.Check(context.Background(), parse.NewAddress("test@example.com"))

	assert.False(t, result.Passed)
	assert.False(t, result.Definitive)
	assert.Contains(t, result.Reason, "MX lookup failed")
}

func TestExistenceChecker_TriesNextHostOnTransportError(t *testing.T) {
	records := []*net.MX{
		{Host: "dead.example.com.", Pref: 10},
		{Host: "live.example.com.", Pref: 20},
	}

	dial := func(network, address string, timeout time.Duration) (net.Conn, error) {
		if strings.HasPrefix(address, "dead.") {
			return nil, fmt.Errorf("connection refused")
		}
		client, server := net.Pipe()
		go fakeMailServer(server, "220 live.example.com ESMTP", map[string]string{
			"EHLO": "250 OK", "MAIL FROM": "250 OK", "RCPT TO": "250 OK",
		})
		return client, nil
	}

	pool := smtppool.New(smtppool.Config{
		HeloDomain:     "probe.test",
		MailFrom:       "verify@probe.test",
		ConnectTimeout: time.Second,
		CommandTimeout: time.Second,
		Port:           "25",
		Dial:           dial,
	})
	defer func() { _ = pool.Close() }()

	c := check.NewExistenceChecker(check.ExistConfig{
		HeloDomain: "probe.test",
		MailFrom:   "verify@probe.test",
		MaxMXHosts: 2,
	}, func(_ context.Context, _ string) ([]*net.MX, error) {
		return records, nil
	}, pool)

	result := c.Check(context.Background(), parse.NewAddress("test@example.com"))
	assert.True(t, result.Passed)
	assert.Equal(t, "live.example.com", result.Host)
}
