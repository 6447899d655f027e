package ci

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/variantdev/reml/pkg/vhttpget"
)

type Option interface {
	SetOption(c *Client) error
}

type optionFunc func(c *Client) error

func (f optionFunc) SetOption(c *Client) error {
	return f(c)
}

func Logger(l logr.Logger) Option {
	return optionFunc(func(c *Client) error {
		c.Logger = l
		return nil
	})
}

func HTTP(g vhttpget.Getter) Option {
	return optionFunc(func(c *Client) error {
		c.http = g
		return nil
	})
}

func PollInterval(d time.Duration) Option {
	return optionFunc(func(c *Client) error {
		c.PollInterval = d
		return nil
	})
}

func ScheduleTimeout(d time.Duration) Option {
	return optionFunc(func(c *Client) error {
		c.ScheduleTimeout = d
		return nil
	})
}

func Retry(attempts int, delay time.Duration) Option {
	return optionFunc(func(c *Client) error {
		c.MaxAttempts = attempts
		c.RetryDelay = delay
		return nil
	})
}

// Clock replaces the wall clock and the sleep between polls.
func Clock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return optionFunc(func(c *Client) error {
		c.now = now
		c.sleep = sleep
		return nil
	})
}
