package config

import (
	"crypto/tls"
	"time"

	"github.com/go-errors/errors"
	"github.com/jinzhu/configor"
	"go.uber.org/zap"

	"github.com/matoous/eccentric"
	"github.com/matoous/eccentric/trace"
)

// EnvPrefix prefixes environment variables overriding the configuration,
// e.g. ECCENTRIC_HOSTNAME or ECCENTRIC_LIMITS_MSGSIZE
const EnvPrefix = "ECCENTRIC"

// Config of the eccentric binary
type Config struct {
	Hostname string `required:"true"`     // name announced in the greeting and Received headers
	Mode     string `default:"production"` // development or production

	Server   ServerConfig
	Limits   LimitsConfig
	Spool    SpoolConfig
	Resolver ResolverConfig
	Log      LoggerConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Addr        string `default:":2525"`
	TLSCertFile string // TLS from the first byte when both files are set
	TLSKeyFile  string
}

// LimitsConfig mirrors eccentric.Limits, durations are written like "2m" or "90s"
type LimitsConfig struct {
	CmdInput       string `default:"2m"`
	MsgInput       string `default:"10m"`
	ReplyOut       string `default:"2m"`
	MsgSize        int64  `default:"10485760"` // 10MiB
	BadCmds        int    `default:"10"`
	StrictSequence bool   `default:"false"`
}

type SpoolConfig struct {
	Dir string `default:"spool"`
}

type ResolverConfig struct {
	Disabled    bool
	Nameservers []string // /etc/resolv.conf when empty
	Timeout     string   `default:"5s"`
}

type LoggerConfig struct {
	Level       string `default:"info"`
	Encoding    string // json or console, depends on Mode when empty
	OutputPaths []string
}

// MetricsConfig exposes prometheus metrics over HTTP, disabled when Addr is empty
type MetricsConfig struct {
	Addr string
	Path string `default:"/metrics"`
}

// Load loads the configuration from files, later files override earlier ones,
// environment variables override files
func Load(files ...string) (*Config, error) {
	c := &Config{}
	if err := configor.New(&configor.Config{ENVPrefix: EnvPrefix}).Load(c, files...); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	if _, err := c.ToLimits(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.WrapPrefix(err, "limits."+name, 0)
	}
	return d, nil
}

// ToLimits converts the limits section into session limits
func (c *Config) ToLimits() (eccentric.Limits, error) {
	var (
		l   eccentric.Limits
		err error
	)
	if l.CmdInput, err = parseDuration("cmdinput", c.Limits.CmdInput); err != nil {
		return l, err
	}
	if l.MsgInput, err = parseDuration("msginput", c.Limits.MsgInput); err != nil {
		return l, err
	}
	if l.ReplyOut, err = parseDuration("replyout", c.Limits.ReplyOut); err != nil {
		return l, err
	}
	l.MsgSize = c.Limits.MsgSize
	l.BadCmds = c.Limits.BadCmds
	l.StrictSequence = c.Limits.StrictSequence
	return l, nil
}

// TLSConfig loads the certificate, nil config when TLS isn't configured
func (c *Config) TLSConfig() (*tls.Config, error) {
	if c.Server.TLSCertFile == "" && c.Server.TLSKeyFile == "" {
		return nil, nil
	}
	if c.Server.TLSCertFile == "" || c.Server.TLSKeyFile == "" {
		return nil, errors.New("TLS enabled but no key and cert provided")
	}
	cert, err := tls.LoadX509KeyPair(c.Server.TLSCertFile, c.Server.TLSKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Logger builds the logger, development mode logs human readable output
func (c *Config) Logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Mode == "development" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	zc.Level = level
	if c.Log.Encoding != "" {
		zc.Encoding = c.Log.Encoding
	}
	if len(c.Log.OutputPaths) > 0 {
		zc.OutputPaths = c.Log.OutputPaths
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return logger, nil
}

// DNSResolver returns the resolver for Received headers, nil when disabled
func (c *Config) DNSResolver() (trace.Resolver, error) {
	if c.Resolver.Disabled {
		return nil, nil
	}
	timeout, err := time.ParseDuration(c.Resolver.Timeout)
	if err != nil {
		return nil, errors.WrapPrefix(err, "resolver.timeout", 0)
	}
	return trace.NewDNSResolver(timeout, c.Resolver.Nameservers...), nil
}
