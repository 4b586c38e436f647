package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/AdguardTeam/golibs/redisutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
	"github.com/caarlos0/env/v7"
	"github.com/getsentry/sentry-go"
	"github.com/hostsguard/hostsguard/internal/debugsvc"
	"github.com/hostsguard/hostsguard/internal/errcoll"
	"github.com/hostsguard/hostsguard/internal/identity"
	"github.com/hostsguard/hostsguard/internal/version"
)

// environment represents the configuration that is kept in the environment.
type environment struct {
	CacheDir          string `env:"CACHE_DIR" envDefault:"./cache/"`
	ConfPath          string `env:"CONFIG_PATH" envDefault:"./config.yaml"`
	CrashOutputDir    string `env:"CRASH_OUTPUT_DIR"`
	CrashOutputPrefix string `env:"CRASH_OUTPUT_PREFIX" envDefault:"hostsguard"`
	IdentityStorage   string `env:"IDENTITY_STORAGE" envDefault:"file"`
	LogFormat         string `env:"LOG_FORMAT" envDefault:"text"`
	RedisHost         string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisKey          string `env:"REDIS_KEY" envDefault:"hostsguard:identity"`
	SentryDSN         string `env:"SENTRY_DSN" envDefault:"stderr"`

	ListenAddr net.IP `env:"LISTEN_ADDR" envDefault:"127.0.0.1"`

	RedisIdleTimeout timeutil.Duration `env:"REDIS_IDLE_TIMEOUT" envDefault:"30s"`

	MemoryLimit datasize.ByteSize `env:"MEMORY_LIMIT"`

	MaxThreads int `env:"MAX_THREADS"`

	RedisMaxIdle uint `env:"REDIS_MAX_IDLE" envDefault:"2"`

	ListenPort uint16 `env:"LISTEN_PORT" envDefault:"8182"`
	RedisPort  uint16 `env:"REDIS_PORT" envDefault:"6379"`

	Verbosity uint8 `env:"VERBOSE" envDefault:"0"`

	CrashOutputEnabled strictBool `env:"CRASH_OUTPUT_ENABLED" envDefault:"0"`
	LogTimestamp       strictBool `env:"LOG_TIMESTAMP" envDefault:"1"`
}

// Identity storage types for the IDENTITY_STORAGE environment variable.
const (
	identityStorageFile  = "file"
	identityStorageRedis = "redis"
)

// parseEnvironment reads the configuration.
func parseEnvironment() (envs *environment, err error) {
	envs = &environment{}
	err = env.Parse(envs)
	if err != nil {
		return nil, fmt.Errorf("parsing environments: %w", err)
	}

	return envs, nil
}

// type check
var _ validate.Interface = (*environment)(nil)

// Validate implements the [validate.Interface] interface for *environment.
func (envs *environment) Validate() (err error) {
	errs := []error{
		validate.NotEmpty("CACHE_DIR", envs.CacheDir),
		validate.NotEmpty("CONFIG_PATH", envs.ConfPath),
		validate.NotNegative("MAX_THREADS", envs.MaxThreads),
	}

	_, err = slogutil.NewFormat(envs.LogFormat)
	if err != nil {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: %w", err))
	}

	_, err = slogutil.VerbosityToLevel(envs.Verbosity)
	if err != nil {
		errs = append(errs, fmt.Errorf("VERBOSE: %w", err))
	}

	errs = envs.validateCrashOutput(errs)
	errs = envs.validateIdentityStorage(errs)

	return errors.Join(errs...)
}

// validateCrashOutput appends validation errors to orig if the environment
// variables for crash reporting contain errors.
func (envs *environment) validateCrashOutput(orig []error) (errs []error) {
	errs = orig

	if !envs.CrashOutputEnabled {
		return errs
	}

	errs = append(errs,
		validate.NotEmpty("CRASH_OUTPUT_DIR", envs.CrashOutputDir),
		validate.NotEmpty("CRASH_OUTPUT_PREFIX", envs.CrashOutputPrefix),
	)

	if envs.CrashOutputDir != "" {
		err := validateDir(envs.CrashOutputDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("CRASH_OUTPUT_DIR: %w", err))
		}
	}

	return errs
}

// validateIdentityStorage appends validation errors to orig if the environment
// variables for the identity storage contain errors.
func (envs *environment) validateIdentityStorage(orig []error) (errs []error) {
	errs = orig

	switch typ := envs.IdentityStorage; typ {
	case identityStorageFile:
		return errs
	case identityStorageRedis:
		return append(errs,
			validate.NotEmpty("REDIS_HOST", envs.RedisHost),
			validate.Positive("REDIS_PORT", envs.RedisPort),
			validate.NotEmpty("REDIS_KEY", envs.RedisKey),
			validate.Positive("REDIS_IDLE_TIMEOUT", envs.RedisIdleTimeout),
			validate.Positive("REDIS_MAX_IDLE", envs.RedisMaxIdle),
		)
	default:
		return append(errs, fmt.Errorf("IDENTITY_STORAGE: %w: %q", errors.ErrBadEnumValue, typ))
	}
}

// validateDir is a best-effort check to make sure the directory exists.
func validateDir(dirPath string) (err error) {
	fi, err := os.Stat(dirPath)
	if err != nil {
		return err
	}

	if !fi.IsDir() {
		return errors.Error("not a directory")
	}

	return nil
}

// buildErrColl builds and returns an error collector from environment.
// baseLogger must not be nil.
func (envs *environment) buildErrColl(
	baseLogger *slog.Logger,
) (errColl errcoll.Interface, err error) {
	dsn := envs.SentryDSN
	if dsn == "stderr" {
		return errcoll.NewWriterErrorCollector(os.Stderr), nil
	}

	cli, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		AttachStacktrace: true,
		Release:          version.Version(),
	})
	if err != nil {
		return nil, err
	}

	l := baseLogger.With(slogutil.KeyPrefix, "sentry_errcoll")

	return errcoll.NewSentryErrorCollector(cli, l), nil
}

// buildIdentityStorage returns the identity storage described by the
// environment.  mtrc is only used by the pool of the Redis storage.  envs must
// be valid.
func (envs *environment) buildIdentityStorage(
	baseLogger *slog.Logger,
	mtrc redisutil.PoolMetrics,
) (s identity.Storage, err error) {
	if envs.IdentityStorage == identityStorageFile {
		return identity.NewFileStorage(filepath.Join(envs.CacheDir, identityFileName)), nil
	}

	dialer, err := redisutil.NewDefaultDialer(&redisutil.DefaultDialerConfig{
		Addr: &netutil.HostPort{
			Host: envs.RedisHost,
			Port: envs.RedisPort,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating redis dialer: %w", err)
	}

	connTester, err := redisutil.NewRoleChecker(&redisutil.RoleCheckerConfig{
		Logger: baseLogger.With(slogutil.KeyPrefix, redisutil.LogPrefixValueRoleChecker),
	})
	if err != nil {
		return nil, fmt.Errorf("creating redis role checker: %w", err)
	}

	pool, err := redisutil.NewDefaultPool(&redisutil.DefaultPoolConfig{
		Logger:           baseLogger.With(slogutil.KeyPrefix, redisutil.LogPrefixValuePool),
		ConnectionTester: connTester,
		Dialer:           dialer,
		Metrics:          mtrc,
		IdleTimeout:      time.Duration(envs.RedisIdleTimeout),
		MaxIdle:          int(envs.RedisMaxIdle),
	})
	if err != nil {
		return nil, fmt.Errorf("creating redis pool: %w", err)
	}

	return identity.NewRedisStorage(&identity.RedisStorageConfig{
		Pool: pool,
		Key:  envs.RedisKey,
	}), nil
}

// debugConf returns a debug HTTP service configuration from environment.
func (envs *environment) debugConf(logger *slog.Logger) (conf *debugsvc.Config) {
	addr := netutil.JoinHostPort(envs.ListenAddr.String(), envs.ListenPort)

	return &debugsvc.Config{
		Logger:         logger.With(slogutil.KeyPrefix, "debugsvc"),
		APIAddr:        addr,
		PrometheusAddr: addr,
	}
}

// strictBool is a type for booleans that are parsed from the environment more
// strictly than the usual bool.  It only accepts "0" and "1" as valid values.
type strictBool bool

// UnmarshalText implements the encoding.TextUnmarshaler interface for
// *strictBool.
func (sb *strictBool) UnmarshalText(b []byte) (err error) {
	if len(b) == 1 {
		switch b[0] {
		case '0':
			*sb = false

			return nil
		case '1':
			*sb = true

			return nil
		default:
			// Go on and return an error.
		}
	}

	return fmt.Errorf("invalid value %q, supported: %q, %q", b, "0", "1")
}
