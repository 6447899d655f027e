package vhttpget

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

type Option interface {
	Set(o *Opts)
}

type Opts struct {
	Method string
	Header map[string]string
	Body   []byte

	User     string
	Password string
}

func (o Opts) Set(another *Opts) {
	*another = o
}

type optionFunc func(*Opts)

func (f optionFunc) Set(o *Opts) {
	f(o)
}

func Method(m string) Option {
	return optionFunc(func(o *Opts) { o.Method = m })
}

func Header(k, v string) Option {
	return optionFunc(func(o *Opts) {
		if o.Header == nil {
			o.Header = map[string]string{}
		}
		o.Header[k] = v
	})
}

func Body(b []byte) Option {
	return optionFunc(func(o *Opts) { o.Body = b })
}

func BasicAuth(user, password string) Option {
	return optionFunc(func(o *Opts) {
		o.User = user
		o.Password = password
	})
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// TransportError means no response was received at all.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Snippet    string
}

func (e *StatusError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Method, e.URL, e.Status, e.Snippet)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
}

type Getter interface {
	DoRequest(url string, opt ...Option) (string, error)
	Do(url string, opt ...Option) (*Response, error)
}

type getter struct {
	responseFor func(url string, opts Opts) (*Response, error)
}

func New() Getter {
	return NewWithClient(http.DefaultClient)
}

func NewWithClient(client *http.Client) Getter {
	return &getter{
		responseFor: func(url string, opts Opts) (*Response, error) {
			req, err := http.NewRequest(opts.Method, url, bytes.NewReader(opts.Body))
			if err != nil {
				return nil, err
			}

			if header := opts.Header; header != nil {
				for k, v := range header {
					req.Header.Add(k, v)
				}
			}

			if opts.User != "" {
				req.SetBasicAuth(opts.User, opts.Password)
			}

			res, err := client.Do(req)
			if err != nil {
				return nil, &TransportError{Method: opts.Method, URL: url, Err: err}
			}
			defer res.Body.Close()

			body, err := io.ReadAll(res.Body)
			if err != nil {
				return nil, &TransportError{Method: opts.Method, URL: url, Err: err}
			}

			if res.StatusCode < 200 || res.StatusCode >= 300 {
				snippet := string(body)
				if len(snippet) > 512 {
					snippet = snippet[:512]
				}
				return nil, &StatusError{Method: opts.Method, URL: url, StatusCode: res.StatusCode, Status: res.Status, Snippet: snippet}
			}

			return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: string(body)}, nil
		},
	}
}

// NewTester answers GET requests with the body registered for their url.
func NewTester(expectations map[string]string) Getter {
	seq := map[string][]Response{}
	for url, body := range expectations {
		seq[http.MethodGet+" "+url] = []Response{{StatusCode: http.StatusOK, Body: body}}
	}
	return NewSequenceTester(seq)
}

// NewSequenceTester answers requests keyed by "METHOD url". Responses registered
// for a key are returned in order and the last one repeats. A response whose
// StatusCode is zero simulates a transport failure.
func NewSequenceTester(expectations map[string][]Response) Getter {
	var mu sync.Mutex
	remaining := map[string][]Response{}
	for k, v := range expectations {
		remaining[k] = append([]Response{}, v...)
	}

	return &getter{
		responseFor: func(url string, opts Opts) (*Response, error) {
			key := opts.Method + " " + url

			mu.Lock()
			rs, ok := remaining[key]
			var r Response
			if ok && len(rs) > 0 {
				r = rs[0]
				if len(rs) > 1 {
					remaining[key] = rs[1:]
				}
			}
			mu.Unlock()

			if !ok {
				return nil, fmt.Errorf("unexpected input: method=%v, url=%v, opts=%v", opts.Method, url, opts)
			}

			if r.StatusCode == 0 {
				return nil, &TransportError{Method: opts.Method, URL: url, Err: fmt.Errorf("connection refused")}
			}

			if r.StatusCode < 200 || r.StatusCode >= 300 {
				return nil, &StatusError{Method: opts.Method, URL: url, StatusCode: r.StatusCode, Status: http.StatusText(r.StatusCode), Snippet: r.Body}
			}

			if r.Header == nil {
				r.Header = http.Header{}
			}

			return &r, nil
		},
	}
}

func (t *getter) Do(url string, opt ...Option) (*Response, error) {
	opts := &Opts{}
	for _, o := range opt {
		o.Set(opts)
	}
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	opts.Method = strings.ToUpper(opts.Method)

	return t.responseFor(url, *opts)
}

func (t *getter) DoRequest(url string, opt ...Option) (string, error) {
	res, err := t.Do(url, opt...)
	if err != nil {
		return "", err
	}

	return res.Body, nil
}
