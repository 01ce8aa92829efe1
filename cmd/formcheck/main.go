// Command formcheck checks form values from the command line, or serves the
// same checks over HTTP with --serve.
//
//	formcheck user@example.com 'User@Example.com'
//	printf 'a@b.co\nnope\n' | formcheck
//	formcheck --kind blank '   '
//	formcheck --serve --http_port 8080 --rate_limit_rps 5
//	formcheck --version
//
// Each checked value is printed as "true<TAB>value" or "false<TAB>value".
// The exit code is 0 when every value passed, 1 when any failed, and 2 on
// usage or configuration errors.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dalemusser/formcheck/checkapi"
	"github.com/dalemusser/formcheck/config"
	"github.com/dalemusser/formcheck/health"
	"github.com/dalemusser/formcheck/httputil"
	"github.com/dalemusser/formcheck/logging"
	"github.com/dalemusser/formcheck/metrics"
	"github.com/dalemusser/formcheck/ratelimit"
	"github.com/dalemusser/formcheck/router"
	"github.com/dalemusser/formcheck/server"
	"github.com/dalemusser/formcheck/validate"
	"github.com/dalemusser/formcheck/version"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	exitOK      = 0
	exitInvalid = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) int {
	bootstrap := logging.BootstrapLogger()
	defer func() { _ = bootstrap.Sync() }()

	cfg, values, err := config.Load(bootstrap, args)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		bootstrap.Error("config load failed", zap.Error(err))
		return exitUsage
	}

	if cfg.ShowVersion {
		fmt.Fprintln(stdout, version.String())
		return exitOK
	}

	logger, err := logging.BuildLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		bootstrap.Error("logger build failed", zap.Error(err))
		return exitUsage
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Serve {
		if len(values) > 0 {
			logger.Error("positional values cannot be combined with --serve", zap.Int("count", len(values)))
			return exitUsage
		}
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("server exited with error", zap.Error(err))
			return exitInvalid
		}
		return exitOK
	}

	allOK, err := checkValues(cfg, values, stdin, stdout)
	if err != nil {
		logger.Error("check failed", zap.Error(err))
		return exitUsage
	}
	if !allOK {
		return exitInvalid
	}
	return exitOK
}

// checkValues checks values, or newline-separated lines from stdin when
// values is empty. Only the line terminator ("\n" or "\r\n") is removed from
// stdin lines; the rest of the line is checked as is.
func checkValues(cfg *config.Config, values []string, stdin io.Reader, stdout io.Writer) (bool, error) {
	checker := checkapi.NewChecker(cfg.Check.CaseInsensitive)
	out := bufio.NewWriter(stdout)
	allOK := true

	check := func(v string) error {
		ok, err := checker.Check(cfg.Check.Kind, v)
		if err != nil {
			return err
		}
		allOK = allOK && ok
		_, err = fmt.Fprintf(out, "%t\t%s\n", ok, v)
		return err
	}

	if len(values) > 0 {
		for _, v := range values {
			if err := check(v); err != nil {
				return false, err
			}
		}
		return allOK, out.Flush()
	}

	r := bufio.NewReader(stdin)
	for {
		line, err := r.ReadString('\n')
		if line != "" || err == nil {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			if cerr := check(line); cerr != nil {
				return false, cerr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return false, fmt.Errorf("read stdin: %w", err)
		}
	}
	return allOK, out.Flush()
}

// buildHandler assembles the HTTP API: middleware stack, health, version,
// metrics, and the check routes. limiter may be nil.
func buildHandler(cfg *config.Config, limiter *ratelimit.KeyLimiter, logger *zap.Logger, opts ...checkapi.CheckerOption) http.Handler {
	r := router.New(cfg, logger)

	health.Mount(r, map[string]health.Check{
		"email_pattern": emailPatternProbe,
	}, logger)
	version.Mount(r)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	checkapi.Mount(r, checkapi.NewHandler(cfg.Check, logger, opts...), ratelimit.Middleware(limiter, logger))

	return r
}

// emailPatternProbe confirms the compiled email grammar still separates a
// known-good address from a single-label one.
func emailPatternProbe(context.Context) error {
	if !validate.IsValidEmail("probe@example.com") || validate.IsValidEmail("probe@localhost") {
		return errors.New("email pattern self-test failed")
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics.RegisterDefault(logger)
	httputil.SetLogger(logger)

	ctx, cancel := server.WithShutdownSignals(ctx, logger)
	defer cancel()

	msgs, err := checkapi.LoadMessages(cfg.Check.MessagesFile)
	if err != nil {
		return err
	}

	var limiter *ratelimit.KeyLimiter
	if cfg.HTTP.RateLimitRPS > 0 {
		limiter = ratelimit.NewKeyLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst, 10*time.Minute)
		go limiter.Run(ctx)
	}

	logger.Info("starting formcheck", zap.String("version", version.String()))
	logger.Debug("config", zap.String("dump", cfg.Dump()))
	return server.ListenAndServe(ctx, cfg, buildHandler(cfg, limiter, logger, checkapi.WithMessages(msgs)), logger)
}
