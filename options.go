package redis

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eyadof/Net-Async-Redis/internal/infra/confloader"
	"github.com/eyadof/Net-Async-Redis/internal/telemetry/logger"
)

// Defaults applied by DefaultOptions.
const (
	DefaultHost          = "localhost"
	DefaultPort          = 6379
	DefaultPipelineDepth = 100
	DefaultStreamLen     = 1 << 20 // 1 MiB
)

// Options configures a Connection.
type Options struct {
	// Host and Port locate the server.
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// URI is an optional redis://[user:pass@]host[:port][/db] locator.
	// Its parts fill whichever of Host, Port, Auth and Database are not
	// already set. A bare host:port is accepted and the scheme implied.
	URI string `koanf:"uri"`

	// Auth is the password for AUTH (RESP2) or HELLO AUTH default.
	Auth string `koanf:"auth"`

	// Database selects a logical database via SELECT when non-zero.
	Database int `koanf:"database"`

	// ClientName is announced via CLIENT SETNAME / HELLO SETNAME.
	ClientName string `koanf:"client_name"`

	// PipelineDepth bounds concurrent in-flight requests. Zero disables
	// the bound.
	PipelineDepth int `koanf:"pipeline_depth"`

	// StreamReadLen and StreamWriteLen size the stream buffers.
	StreamReadLen  int `koanf:"stream_read_len"`
	StreamWriteLen int `koanf:"stream_write_len"`

	// ClientSideCacheSize enables the client-side cache and bounds its
	// entry count. Zero disables caching.
	ClientSideCacheSize int `koanf:"client_side_cache_size"`

	// OpenTracing emits a tracing span per request. Its initial default
	// comes from the USE_OPENTRACING environment variable.
	OpenTracing bool `koanf:"opentracing"`

	// OnDisconnect, when set, is invoked once when the stream closes.
	OnDisconnect func(err error) `koanf:"-"`

	// Logger receives the connection's structured log output. Defaults
	// to the package logger.
	Logger logger.Logger `koanf:"-"`

	// Metrics, when set, receives the connection's Prometheus
	// collectors.
	Metrics prometheus.Registerer `koanf:"-"`
}

// DefaultOptions returns the option defaults. The OpenTracing default is
// seeded from USE_OPENTRACING.
func DefaultOptions() Options {
	return Options{
		Host:           DefaultHost,
		Port:           DefaultPort,
		PipelineDepth:  DefaultPipelineDepth,
		StreamReadLen:  DefaultStreamLen,
		StreamWriteLen: DefaultStreamLen,
		OpenTracing:    useOpenTracingDefault(),
	}
}

// OptionsFromEnv builds Options from DefaultOptions overlaid with REDIS_*
// environment variables and, if path is non-empty, a YAML file.
func OptionsFromEnv(path string) (Options, error) {
	opts := DefaultOptions()
	loaderOpts := []confloader.Option{}
	if path != "" {
		loaderOpts = append(loaderOpts, confloader.WithConfigFile(path))
	}
	if err := confloader.NewLoader(loaderOpts...).Load(&opts); err != nil {
		return Options{}, fmt.Errorf("load options: %w", err)
	}
	return opts, nil
}

func useOpenTracingDefault() bool {
	v := os.Getenv("USE_OPENTRACING")
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// normalize fills defaults and folds the URI into the explicit fields.
func (o *Options) normalize() error {
	if o.URI != "" {
		if err := o.applyURI(); err != nil {
			return err
		}
	}
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.PipelineDepth < 0 {
		o.PipelineDepth = 0
	}
	if o.StreamReadLen <= 0 {
		o.StreamReadLen = DefaultStreamLen
	}
	if o.StreamWriteLen <= 0 {
		o.StreamWriteLen = DefaultStreamLen
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	return nil
}

// applyURI parses o.URI and fills the locator fields it does not override.
func (o *Options) applyURI() error {
	raw := o.URI
	if !strings.Contains(raw, "://") {
		raw = "redis://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return &Error{Kind: KindUsage, Message: "invalid URI " + logger.RedactURI(raw), cause: err}
	}
	if u.Scheme != "redis" {
		return &Error{Kind: KindUsage, Message: "unsupported URI scheme " + u.Scheme}
	}

	host, port := u.Hostname(), u.Port()
	if o.Host == "" && host != "" {
		o.Host = host
	}
	if o.Port == 0 && port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return &Error{Kind: KindUsage, Message: "invalid URI port " + port, cause: err}
		}
		o.Port = n
	}
	if o.Auth == "" && u.User != nil {
		if pass, ok := u.User.Password(); ok {
			o.Auth = pass
		} else {
			// redis://secret@host carries a bare password.
			o.Auth = u.User.Username()
		}
	}
	if o.Database == 0 {
		if db := strings.TrimPrefix(u.Path, "/"); db != "" {
			n, err := strconv.Atoi(db)
			if err != nil || n < 0 {
				return &Error{Kind: KindUsage, Message: "invalid URI database " + db}
			}
			o.Database = n
		}
	}
	return nil
}

// Addr returns the host:port dial target.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}
