/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	storeMemory = "memory"
	storeRedis  = "redis"

	minRoomTTL = time.Second
)

type Config struct {
	baseURL       string
	bind          string
	corsOrigins   []string
	envFile       string
	port          int
	prefix        string
	profile       bool
	redisAddr     string
	redisDB       int
	redisPassword string
	roomTTL       time.Duration
	store         string
	tlsCert       string
	tlsKey        string
	verbose       bool
	version       bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.store {
	case storeMemory:
	case storeRedis:
		if c.redisAddr == "" {
			return errors.New("--redis-addr is required when --store=redis")
		}
		if c.redisDB < 0 {
			return fmt.Errorf("invalid redis database: %d", c.redisDB)
		}
	default:
		return fmt.Errorf("invalid store %q (must be %q or %q)", c.store, storeMemory, storeRedis)
	}
	if c.roomTTL < 0 || (c.roomTTL > 0 && c.roomTTL < minRoomTTL) {
		return fmt.Errorf("invalid room ttl: %s (must be 0 or at least %s)", c.roomTTL, minRoomTTL)
	}
	if c.baseURL != "" {
		u, err := url.Parse(c.baseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base url: %q", c.baseURL)
		}
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// loadEnvFile reads KEY=value pairs into the environment without overriding
// anything already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PLOTTWIST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

func newCmd(cfg *Config) *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:           "plottwist",
		Short:         "Plot Twist: place your friends on the chart, and find out where they put you.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd.Flags(), v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.version {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "plottwist v%s\n", releaseVersion)
				return err
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.baseURL, "base-url", "", "public url used in invite links and qr codes (env: PLOTTWIST_BASE_URL)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PLOTTWIST_BIND)")
	fs.StringSliceVar(&cfg.corsOrigins, "cors-origin", nil, "origin allowed to call the api, repeatable (env: PLOTTWIST_CORS_ORIGIN)")
	fs.StringVar(&cfg.envFile, "env-file", ".env", "dotenv file to load before reading the environment (env: PLOTTWIST_ENV_FILE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PLOTTWIST_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PLOTTWIST_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PLOTTWIST_PROFILE)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "localhost:6379", "redis server address (env: PLOTTWIST_REDIS_ADDR)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis database number (env: PLOTTWIST_REDIS_DB)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: PLOTTWIST_REDIS_PASSWORD)")
	fs.DurationVar(&cfg.roomTTL, "room-ttl", 6*time.Hour, "time before idle rooms are removed, 0 to keep forever (env: PLOTTWIST_ROOM_TTL)")
	fs.StringVar(&cfg.store, "store", storeMemory, "document store backend: memory or redis (env: PLOTTWIST_STORE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PLOTTWIST_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PLOTTWIST_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PLOTTWIST_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PLOTTWIST_VERSION)")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("plottwist v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

// bindFlags fills every flag not given on the command line from the
// environment, after loading the dotenv file.
func bindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	envFile, _ := flags.GetString("env-file")
	if env, ok := os.LookupEnv("PLOTTWIST_ENV_FILE"); ok && !flags.Changed("env-file") {
		envFile = env
	}
	if err := loadEnvFile(envFile); err != nil {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}

	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := flags.Set(f.Name, v.GetString(f.Name)); err != nil {
			errs = append(errs, fmt.Errorf("invalid value for PLOTTWIST_%s: %w",
				strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
		}
	})

	return errors.Join(errs...)
}
