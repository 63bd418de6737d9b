package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-school-auth/audit"
	"github.com/jrsteele09/go-school-auth/auth"
	"github.com/jrsteele09/go-school-auth/internal/config"
	"github.com/jrsteele09/go-school-auth/maintenance"
	"github.com/jrsteele09/go-school-auth/otp"
	"github.com/jrsteele09/go-school-auth/ratelimit"
	"github.com/jrsteele09/go-school-auth/server"
	"github.com/jrsteele09/go-school-auth/store/postgres"
	"github.com/jrsteele09/go-school-auth/tenants"
	"github.com/jrsteele09/go-school-auth/token"
)

const maintenanceInterval = 5 * time.Minute

func main() {
	for {
		if err := run(); err != nil {
			stdlog.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	stdlog.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			stdlog.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	c := config.New()
	displayAppname(c.GetAppName())

	authService, worker, err := buildServices(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)
	defer worker.Stop()

	httpServer := &http.Server{Addr: c.GetPort(), Handler: server.New(c, authService)}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func buildServices(c config.Config) (*auth.Service, *maintenance.Worker, error) {
	db, err := postgres.Connect(c.GetDatabaseURL())
	if err != nil {
		return nil, nil, fmt.Errorf("postgres.Connect: %w", err)
	}
	if err := postgres.EnsureSchema(context.Background(), db); err != nil {
		return nil, nil, fmt.Errorf("postgres.EnsureSchema: %w", err)
	}

	sealKey, err := c.GetSealKey()
	if err != nil {
		return nil, nil, fmt.Errorf("config.GetSealKey: %w", err)
	}

	tokenService := token.NewService(
		token.NewHMACSigner(c.GetTokenSecret()),
		token.WithExpiry(c.GetTokenExpiry()),
		token.WithRevocationList(token.NewInMemoryRevocationList()),
	)

	codeRepo := postgres.NewCodeRepo(db)
	codeService, err := otp.NewService(codeRepo)
	if err != nil {
		return nil, nil, fmt.Errorf("otp.NewService: %w", err)
	}

	limiter := ratelimit.New(c.GetRateLimitWindow(), c.GetRateLimitMax())
	auditor := audit.NewLogger(postgres.NewAuditRepo(db), log.Logger)

	authService, err := auth.NewService(
		auth.Repos{
			Users:       postgres.NewUserRepo(db),
			Memberships: postgres.NewMembershipRepo(db),
			Dependents:  postgres.NewDependentRepo(db),
			Schools:     postgres.NewSchoolRepo(db),
		},
		tokenService,
		codeService,
		limiter,
		auditor,
		sealKey,
		auth.WithSender(logSender{}),
		auth.WithLogger(log.Logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("auth.NewService: %w", err)
	}

	worker := maintenance.NewWorker(maintenanceInterval, log.Logger,
		maintenance.Task{Name: "rate-limit-windows", Run: func(context.Context) error {
			limiter.Purge()
			return nil
		}},
		maintenance.Task{Name: "one-time-codes", Run: func(ctx context.Context) error {
			_, err := codeService.PurgeExpired(ctx)
			return err
		}},
		maintenance.Task{Name: "token-revocations", Run: func(context.Context) error {
			tokenService.CleanupRevocations()
			return nil
		}},
	)

	return authService, worker, nil
}

// logSender writes one-time codes to the application log. Real deployments
// replace it with an SMS or email gateway via auth.WithSender.
type logSender struct{}

func (logSender) SendOneTimeCode(identifier, plaintext string, school *tenants.School) error {
	event := log.Info().Str("identifier", identifier).Str("code", plaintext)
	if school != nil {
		event = event.Str("school", school.Code)
	}
	event.Msg("one-time code issued")
	return nil
}

func listenAndServe(server *http.Server) error {
	stdlog.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
