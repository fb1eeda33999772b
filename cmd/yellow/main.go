package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"yellowsdk/internal/api"
	"yellowsdk/internal/archive"
	"yellowsdk/internal/config"
	"yellowsdk/internal/logging"
	"yellowsdk/internal/merchant"
	"yellowsdk/internal/store"
	"yellowsdk/yellow"
)

const usage = `usage: yellow <command> [flags]

commands:
  create   create an invoice
  query    fetch an invoice by id
  verify   check an IPN signature
  serve    run the merchant server
  stats    print ledger statistics
`

func main() {
	// .env is optional
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "create":
		err = runCreate(args)
	case "query":
		err = runQuery(args)
	case "verify":
		err = runVerify(args)
	case "serve":
		err = runServe(args)
	case "stats":
		err = runStats(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var apiErr *yellow.APIError
		if errors.As(err, &apiErr) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

func newClient() (*yellow.Client, error) {
	return yellow.NewClient(yellow.ConfigFromEnv())
}

func printInvoice(inv yellow.Invoice) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(inv)
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	ccy := fs.String("ccy", "USD", "Base currency")
	price := fs.String("price", "", "Base price, e.g. 0.10 (required)")
	callback := fs.String("callback", os.Getenv("YELLOW_CALLBACK_URL"), "IPN callback URL")
	order := fs.String("order", "", "Merchant order reference")
	typ := fs.String("type", "cart", "Invoice type")
	redirect := fs.String("redirect", "", "Redirect URL after payment")
	timeout := fs.Duration("timeout", 30*time.Second, "Request timeout")
	fs.Parse(args)

	p, err := decimal.NewFromString(*price)
	if err != nil || !p.IsPositive() {
		return fmt.Errorf("-price must be a positive decimal, got %q", *price)
	}

	fields := yellow.NewInvoiceFields(*ccy, p.String())
	if *callback != "" {
		fields.Set(yellow.FieldCallback, *callback)
	}
	if *typ != "" {
		fields.Set(yellow.FieldType, *typ)
	}
	if *order != "" {
		fields.Set(yellow.FieldOrder, *order)
	}
	if *redirect != "" {
		fields.Set(yellow.FieldRedirect, *redirect)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	inv, err := client.CreateInvoice(ctx, fields)
	if err != nil {
		return err
	}
	return printInvoice(inv)
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	timeout := fs.Duration("timeout", 30*time.Second, "Request timeout")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: yellow query [-timeout d] <invoice-id>")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	inv, err := client.QueryInvoice(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return printInvoice(inv)
}

// runVerify checks a notification captured elsewhere. The body is read from
// -body or stdin, byte for byte.
func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	url := fs.String("url", os.Getenv("YELLOW_CALLBACK_URL"), "Callback URL the invoice was created with")
	nonce := fs.String("nonce", "", "API-Nonce header value")
	sign := fs.String("sign", "", "API-Sign header value")
	body := fs.String("body", "", "Raw request body (default: read stdin)")
	fs.Parse(args)

	secret := yellow.ConfigFromEnv().APISecret
	if secret == "" {
		return fmt.Errorf("YELLOW_API_SECRET is empty")
	}
	if *url == "" || *nonce == "" || *sign == "" {
		return fmt.Errorf("-url, -nonce and -sign are required")
	}

	raw := *body
	if raw == "" {
		b, err := readIPNBody(os.Stdin)
		if err != nil {
			return err
		}
		raw = b
	}

	if !yellow.VerifyIPN(secret, *url, *nonce, *sign, raw) {
		fmt.Println("INVALID")
		os.Exit(1)
	}
	fmt.Println("OK")
	return nil
}

// readIPNBody reads a notification body, refusing anything the server would
// reject as too large rather than checking a truncated copy.
func readIPNBody(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, yellow.MaxIPNBodySize+1))
	if err != nil {
		return "", err
	}
	if len(b) > yellow.MaxIPNBodySize {
		return "", fmt.Errorf("notification body exceeds %d bytes", yellow.MaxIPNBodySize)
	}
	return string(b), nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dbPath := fs.String("db", envOr("DB_PATH", "yellow.db"), "SQLite database path")
	fs.Parse(args)

	st, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	stats, err := st.GetStats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}
	printStats(stats)
	return nil
}

func printStats(stats *store.Stats) {
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║            Invoice Statistics            ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Total Invoices:  %-22d║\n", stats.TotalInvoices)
	fmt.Printf("║  ├─ Open:         %-22d║\n", stats.OpenInvoices)
	fmt.Printf("║  ├─ Paid:         %-22d║\n", stats.PaidInvoices)
	fmt.Printf("║  └─ Expired:      %-22d║\n", stats.ExpiredInvoices)
	fmt.Printf("║  Notifications:   %-22d║\n", stats.Notifications)
	fmt.Println("╠══════════════════════════════════════════╣")
	if !stats.OldestInvoice.IsZero() {
		fmt.Printf("║  Oldest Invoice:  %-22s║\n", stats.OldestInvoice.Format("2006-01-02 15:04"))
		fmt.Printf("║  Newest Invoice:  %-22s║\n", stats.NewestInvoice.Format("2006-01-02 15:04"))
	} else {
		fmt.Println("║  No invoices in database                 ║")
	}
	fmt.Println("╚══════════════════════════════════════════╝")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runServe(args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.ArchiveDir, "archive", cfg.ArchiveDir, "IPN archive directory (when B2 is not configured)")
	devMode := fs.Bool("dev", false, "Development mode: disables CORS restrictions and rate limiting")
	fs.Parse(args)

	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := yellow.NewClient(cfg.Yellow)
	if err != nil {
		return err
	}
	logging.Internal.Printf("using invoice API at %s", client.Server())

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	// Archive raw IPN payloads to B2 if configured, otherwise local filesystem
	var storage archive.Storage
	if cfg.UseB2() {
		b2, err := archive.NewB2Storage(cfg.B2)
		if err != nil {
			return fmt.Errorf("failed to initialize B2 storage: %w", err)
		}
		storage = b2
		logging.Internal.Printf("archiving notifications to B2 (bucket: %s)", cfg.B2.Bucket)
	} else {
		fsStorage, err := archive.NewFSStorage(cfg.ArchiveDir)
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		storage = fsStorage
		logging.Internal.Printf("archiving notifications to %s", cfg.ArchiveDir)
	}

	svc := merchant.NewService(client, st)

	pendingLimiter := api.NewPendingInvoiceLimiter(cfg.MaxPendingPerIP)
	svc.SetPaymentCallback(pendingLimiter.OnPaymentReceived)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.StartReconciler(ctx, cfg.ReconcileInterval)

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := pendingLimiter.CleanupExpired(24 * time.Hour); n > 0 {
					logging.Internal.Printf("cleaned up %d stale pending invoice entries", n)
				}
			}
		}
	}()

	handler := api.NewHandler(svc, storage, api.IPNConfig{
		Secret:      cfg.Yellow.APISecret,
		CallbackURL: cfg.CallbackURL,
	}, pendingLimiter)

	mux := http.NewServeMux()
	mux.Handle("/api/", handler)

	var corsConfig api.CORSConfig
	if *devMode {
		logging.Internal.Println("development mode: CORS allowing all origins")
	} else {
		corsConfig.AllowedOrigins = cfg.CORSOrigins
		logging.Internal.Printf("CORS restricted to origins: %v", cfg.CORSOrigins)
	}

	// Apply middleware (order: Logger -> RateLimit -> CORS -> handler)
	var finalHandler http.Handler = mux
	finalHandler = api.CORS(corsConfig)(finalHandler)
	var rateLimiter *api.RateLimiterMiddleware
	if !*devMode {
		rateLimiter = api.NewRateLimiter(api.DefaultRateLimitConfig())
		finalHandler = rateLimiter.Middleware(finalHandler)
		logging.Internal.Println("rate limiting enabled")
	}
	finalHandler = api.Logger(finalHandler)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logging.Internal.Println("shutting down...")
		cancel()

		if rateLimiter != nil {
			rateLimiter.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Internal.Printf("shutdown error: %v", err)
		}
	}()

	logging.Internal.Printf("starting server on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
