// Package config reads the per-project settings of reml.
//
// Settings live in an INI file, one section per project:
//
//	[LTTng-tools]
//	git_urls = git@github.com:lttng/lttng-tools.git,ssh://git.lttng.org/lttng-tools.git
//	ci_url = https://ci.lttng.org
//	ci_user = jenkins-user
//	ci_token = ...
//	github_user = ...
//	github_token = ...
//	upload_location = lttng.org:/srv/www/files/lttng-tools
//
// Every key can be overridden from the environment as REML_<PROJECT>_<KEY>,
// for instance REML_LTTNG_TOOLS_CI_TOKEN.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

const (
	EnvPrefix = "REML"

	relPath = "reml/reml.conf"

	DefaultPollInterval = time.Second
)

// Keys every project section must define.
var requiredKeys = []string{
	"git_urls",
	"ci_url",
	"ci_user",
	"ci_token",
	"github_user",
	"github_token",
	"upload_location",
}

var optionalKeys = []string{
	"metrics_push_url",
	"poll_interval",
	"schedule_timeout",
}

type MissingConfigurationError struct {
	Path string
}

func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("configuration file not found at %s", e.Path)
}

type MissingConfigurationAttributeError struct {
	Project   string
	Attribute string
}

func (e *MissingConfigurationAttributeError) Error() string {
	return fmt.Sprintf("missing `%s` in configuration of %s", e.Attribute, e.Project)
}

type ProjectConfig struct {
	GitURLs        []string
	CIURL          string
	CIUser         string
	CIToken        string
	GitHubUser     string
	GitHubToken    string
	UploadLocation string

	MetricsPushURL  string
	PollInterval    time.Duration
	ScheduleTimeout time.Duration
}

// Path returns the configuration file to read. An explicit path wins; otherwise
// the XDG config directories are searched, and the expected location under
// $XDG_CONFIG_HOME is returned when nothing is found.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if p, err := xdg.SearchConfigFile(relPath); err == nil {
		return p
	}

	return filepath.Join(xdg.ConfigHome, relPath)
}

// Load reads the section of project from the file at path, with environment overrides applied.
func Load(path, project string) (*ProjectConfig, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingConfigurationError{Path: path}
		}
		return nil, err
	}

	f, err := ini.InsensitiveLoad(path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	key := func(k string) string {
		return strings.ToLower(project) + "." + k
	}

	if sec, err := f.GetSection(strings.ToLower(project)); err == nil {
		for _, k := range append(requiredKeys, optionalKeys...) {
			if sec.HasKey(k) {
				v.SetDefault(key(k), sec.Key(k).String())
			}
		}
	}

	get := func(k string) (string, error) {
		s := strings.TrimSpace(v.GetString(key(k)))
		if s == "" {
			return "", &MissingConfigurationAttributeError{Project: project, Attribute: k}
		}
		return s, nil
	}

	values := map[string]string{}
	for _, k := range requiredKeys {
		s, err := get(k)
		if err != nil {
			return nil, err
		}
		values[k] = s
	}

	c := &ProjectConfig{
		GitURLs:        list(values["git_urls"]),
		CIURL:          values["ci_url"],
		CIUser:         values["ci_user"],
		CIToken:        values["ci_token"],
		GitHubUser:     values["github_user"],
		GitHubToken:    values["github_token"],
		UploadLocation: values["upload_location"],
		MetricsPushURL: strings.TrimSpace(v.GetString(key("metrics_push_url"))),
		PollInterval:   DefaultPollInterval,
	}

	if s := strings.TrimSpace(v.GetString(key("poll_interval"))); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid poll_interval %q in configuration of %s", s, project)
		}
		c.PollInterval = d
	}

	if s := strings.TrimSpace(v.GetString(key("schedule_timeout"))); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid schedule_timeout %q in configuration of %s", s, project)
		}
		c.ScheduleTimeout = d
	}

	return c, nil
}

func list(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
