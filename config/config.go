// Package config loads the settings of an import run.
//
// The run file is read with viper. Its format follows the extension; files
// without one, or ending in .properties, are read as Java-style properties
// with values taken literally:
//
//	data.source.id=rda
//	base.url=https://registry.example.org
//	session.id=...
//	s3.bucket=exports
//	s3.prefix=rda/rif
//	crosswalk=~/crosswalks/rif.tmpl
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/magiconair/properties"
	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys of the run file.
const (
	KeySourceID     = "data.source.id"
	KeyBaseURL      = "base.url"
	KeySessionID    = "session.id"
	KeyBucket       = "s3.bucket"
	KeyPrefix       = "s3.prefix"
	KeyAccessKey    = "aws.access.key"
	KeySecretKey    = "aws.secret.key"
	KeyCrosswalk    = "crosswalk"
	KeyRegion       = "s3.region"
	KeyEndpoint     = "s3.endpoint"
	KeyPageSize     = "s3.page.size"
	KeyGunzip       = "s3.gunzip"
	KeyHTTPTimeout  = "http.timeout"
	KeyUploadRate   = "upload.rate"
	KeyStopOnReject = "stop.on.reject"
	KeyDryRun       = "dry.run"
	KeyPushgateway  = "metrics.pushgateway"
	KeyLogLevel     = "log.level"
	KeyLogFormat    = "log.format"
)

// Flag names bound over file values.
var flagKeys = map[string]string{
	"log-level":      KeyLogLevel,
	"log-format":     KeyLogFormat,
	"dry-run":        KeyDryRun,
	"stop-on-reject": KeyStopOnReject,
}

// Config is a validated run configuration.
type Config struct {
	SourceID  string
	BaseURL   string
	SessionID string

	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PageSize  int32
	// Gunzip inflates ".gz" records before they are transformed.
	Gunzip bool

	// Crosswalk is the template path; empty means pass-through.
	Crosswalk string

	HTTPTimeout  time.Duration
	UploadRate   float64
	StopOnReject bool
	DryRun       bool

	Pushgateway string

	LogLevel  string
	LogFormat string
}

// Error reports a missing or malformed configuration value.
type Error struct {
	Key string
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Msg)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyRegion, "us-east-1")
	v.SetDefault(KeyHTTPTimeout, "60s")
	v.SetDefault(KeyUploadRate, "0")
	v.SetDefault(KeyPageSize, "0")
	v.SetDefault(KeyGunzip, false)
	v.SetDefault(KeyStopOnReject, false)
	v.SetDefault(KeyDryRun, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
}

func isProperties(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case "", ".properties", ".props", ".prop":
		return true
	}
	return false
}

// readProperties reads a Java properties file into a nested map keyed on
// the dotted segments of each name. Files are ISO-8859-1 and values are
// taken literally: "${name}" is not expanded.
func readProperties(path string) (map[string]interface{}, error) {
	l := &properties.Loader{Encoding: properties.ISO_8859_1, DisableExpansion: true}
	p, err := l.LoadFile(path)
	if err != nil {
		return nil, err
	}

	values := make(map[string]interface{})
	for _, key := range p.Keys() {
		value, _ := p.Get(key)
		parts := strings.Split(key, ".")

		m := values
		for _, k := range parts[:len(parts)-1] {
			next, ok := m[k].(map[string]interface{})
			if !ok {
				if _, taken := m[k]; taken {
					return nil, fmt.Errorf("key %s conflicts with %s", key, strings.Join(parts[:len(parts)-1], "."))
				}
				next = make(map[string]interface{})
				m[k] = next
			}
			m = next
		}
		last := parts[len(parts)-1]
		if _, taken := m[last]; taken {
			return nil, fmt.Errorf("key %s conflicts with a longer key", key)
		}
		m[last] = value
	}

	return values, nil
}

// Load reads the run file at path. Flags in fs that were set on the command
// line override file values.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, &Error{Key: "config", Msg: err.Error()}
	}

	v := viper.New()
	setDefaults(v)
	if isProperties(expanded) {
		values, err := readProperties(expanded)
		if err != nil {
			return nil, &Error{Key: "config", Msg: fmt.Sprintf("read %s: %v", path, err)}
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, &Error{Key: "config", Msg: fmt.Sprintf("read %s: %v", path, err)}
		}
	} else {
		v.SetConfigFile(expanded)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Key: "config", Msg: fmt.Sprintf("read %s: %v", path, err)}
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, &Error{Key: key, Msg: err.Error()}
				}
			}
		}
	}

	return FromViper(v)
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	get := func(key string) string {
		return strings.TrimSpace(v.GetString(key))
	}

	c := &Config{
		SourceID:     get(KeySourceID),
		BaseURL:      strings.TrimRight(get(KeyBaseURL), "/"),
		SessionID:    get(KeySessionID),
		Bucket:       get(KeyBucket),
		Prefix:       strings.TrimRight(get(KeyPrefix), "/"),
		Region:       get(KeyRegion),
		Endpoint:     get(KeyEndpoint),
		AccessKey:    get(KeyAccessKey),
		SecretKey:    get(KeySecretKey),
		Crosswalk:    get(KeyCrosswalk),
		Gunzip:       v.GetBool(KeyGunzip),
		StopOnReject: v.GetBool(KeyStopOnReject),
		DryRun:       v.GetBool(KeyDryRun),
		Pushgateway:  get(KeyPushgateway),
		LogLevel:     strings.ToLower(get(KeyLogLevel)),
		LogFormat:    strings.ToLower(get(KeyLogFormat)),
	}

	timeout, err := time.ParseDuration(get(KeyHTTPTimeout))
	if err != nil || timeout <= 0 {
		return nil, &Error{Key: KeyHTTPTimeout, Msg: fmt.Sprintf("invalid duration %q", get(KeyHTTPTimeout))}
	}
	c.HTTPTimeout = timeout

	rate, err := strconv.ParseFloat(get(KeyUploadRate), 64)
	if err != nil || rate < 0 {
		return nil, &Error{Key: KeyUploadRate, Msg: fmt.Sprintf("invalid rate %q", get(KeyUploadRate))}
	}
	c.UploadRate = rate

	pageSize, err := strconv.ParseInt(get(KeyPageSize), 10, 32)
	if err != nil || pageSize < 0 {
		return nil, &Error{Key: KeyPageSize, Msg: fmt.Sprintf("invalid page size %q", get(KeyPageSize))}
	}
	c.PageSize = int32(pageSize)

	if c.Crosswalk != "" {
		if c.Crosswalk, err = homedir.Expand(c.Crosswalk); err != nil {
			return nil, &Error{Key: KeyCrosswalk, Msg: err.Error()}
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks required values and their shape.
func (c *Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{KeySourceID, c.SourceID},
		{KeyBaseURL, c.BaseURL},
		{KeySessionID, c.SessionID},
		{KeyBucket, c.Bucket},
		{KeyPrefix, c.Prefix},
	}
	for _, r := range required {
		if r.value == "" {
			return &Error{Key: r.key, Msg: "can not be empty"}
		}
	}

	if (c.AccessKey == "") != (c.SecretKey == "") {
		return &Error{Key: KeyAccessKey, Msg: fmt.Sprintf("%s and %s must be set together", KeyAccessKey, KeySecretKey)}
	}

	for _, u := range []struct{ key, value string }{
		{KeyBaseURL, c.BaseURL},
		{KeyEndpoint, c.Endpoint},
		{KeyPushgateway, c.Pushgateway},
	} {
		if u.value == "" {
			continue
		}
		parsed, err := url.Parse(u.value)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return &Error{Key: u.key, Msg: fmt.Sprintf("invalid url %q", u.value)}
		}
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return &Error{Key: KeyLogLevel, Msg: err.Error()}
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return &Error{Key: KeyLogFormat, Msg: fmt.Sprintf("unknown format %q", c.LogFormat)}
	}

	return nil
}

// StaticKeys reports whether explicit AWS keys were configured.
func (c *Config) StaticKeys() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}
