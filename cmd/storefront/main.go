// Package main provides the entry point for the Lojinha storefront client.
// By default it opens the terminal storefront; the other flags run a single command
// (sign in, sign up, list or add products) and exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lojinha-app/storefront/internal/buildinfo"
	"github.com/lojinha-app/storefront/internal/cmd"
	"github.com/lojinha-app/storefront/internal/config"
	"github.com/lojinha-app/storefront/internal/logging"
	"github.com/lojinha-app/storefront/internal/store"
	"github.com/lojinha-app/storefront/internal/util"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	os.Exit(run())
}

// run parses the flags, loads configuration, selects the session store and dispatches
// to the requested command mode. It returns the process exit code.
func run() int {
	var configPath string
	var tuiMode bool
	var login bool
	var browserLogin bool
	var signUp bool
	var logout bool
	var whoami bool
	var listProducts bool
	var addProduct bool
	var product cmd.ProductOptions

	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.BoolVar(&tuiMode, "tui", true, "Start the terminal storefront")
	flag.BoolVar(&login, "login", false, "Sign in with username and password")
	flag.BoolVar(&browserLogin, "login-browser", false, "Sign in through the hosted page in the browser")
	flag.BoolVar(&signUp, "signup", false, "Create an account")
	flag.BoolVar(&logout, "logout", false, "Sign out")
	flag.BoolVar(&whoami, "whoami", false, "Show the signed-in user")
	flag.BoolVar(&listProducts, "products", false, "List the products")
	flag.BoolVar(&addProduct, "add-product", false, "Add a product (with -name, -price and -image)")
	flag.StringVar(&product.Name, "name", "", "Product name")
	flag.StringVar(&product.Price, "price", "", "Product price, e.g. 24,90")
	flag.StringVar(&product.Description, "description", "", "Product description")
	flag.StringVar(&product.Category, "category", "", "Product category")
	flag.StringVar(&product.Image, "image", "", "Path of the product image (JPEG)")
	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return 1
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	// Determine and load the configuration file.
	optional := false
	if configPath == "" {
		configPath = filepath.Join(wd, "config.yaml")
		optional = true
	}
	cfg, err := config.LoadConfigOptional(configPath, optional)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return 1
	}

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return 1
	}
	util.SetLogLevel(cfg)
	log.Infof("Lojinha storefront Version: %s, Commit: %s, BuiltAt: %s", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	sessionStore, err := openSessionStore(cfg, wd)
	if err != nil {
		log.Errorf("failed to initialize session store: %v", err)
		return 1
	}

	rt, err := cmd.NewRuntime(cfg, sessionStore)
	if err != nil {
		log.Errorf("failed to initialize storefront: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rt.Start(ctx)
	defer rt.Close()

	// Handle different command modes based on the provided flags.
	switch {
	case login:
		err = cmd.DoLogin(ctx, rt, nil)
	case browserLogin:
		err = cmd.DoBrowserLogin(ctx, rt, nil)
	case signUp:
		err = cmd.DoSignUp(ctx, rt, nil)
	case logout:
		err = cmd.DoLogout(ctx, rt, nil)
	case whoami:
		err = cmd.DoWhoAmI(ctx, rt, nil)
	case listProducts:
		err = cmd.DoListProducts(ctx, rt, nil)
	case addProduct:
		err = cmd.DoAddProduct(ctx, rt, product, nil)
	case tuiMode:
		err = cmd.StartTUI(ctx, rt, configPath)
	default:
		flag.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}

// openSessionStore selects the session backend: PostgreSQL when SESSIONSTORE_PG_DSN is
// set, otherwise object storage when SESSIONSTORE_OBJECT_ENDPOINT is set, otherwise the
// local session file.
func openSessionStore(cfg *config.Config, wd string) (store.SessionStore, error) {
	lookupEnv := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if value, ok := os.LookupEnv(key); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed, true
				}
			}
		}
		return "", false
	}
	localBase := func(keys ...string) string {
		if value, ok := lookupEnv(keys...); ok {
			return value
		}
		if writable := util.WritablePath(); writable != "" {
			return writable
		}
		return wd
	}
	profile, _ := lookupEnv("SESSIONSTORE_PROFILE", "sessionstore_profile")

	if dsn, ok := lookupEnv("SESSIONSTORE_PG_DSN", "sessionstore_pg_dsn"); ok {
		schema, _ := lookupEnv("SESSIONSTORE_PG_SCHEMA", "sessionstore_pg_schema")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pgStore, err := store.NewPostgresStore(ctx, store.PostgresStoreConfig{
			DSN:      dsn,
			Schema:   schema,
			SpoolDir: filepath.Join(localBase("SESSIONSTORE_PG_LOCAL_PATH", "sessionstore_pg_local_path"), "pgstore"),
			Profile:  profile,
		})
		if err != nil {
			return nil, err
		}
		if err = pgStore.EnsureSchema(ctx); err != nil {
			_ = pgStore.Close()
			return nil, err
		}
		if err = pgStore.Bootstrap(ctx); err != nil {
			_ = pgStore.Close()
			return nil, err
		}
		log.Infof("postgres-backed session store enabled, mirror: %s", pgStore.Path())
		return pgStore, nil
	}

	if endpoint, ok := lookupEnv("SESSIONSTORE_OBJECT_ENDPOINT", "sessionstore_object_endpoint"); ok {
		resolvedEndpoint, useSSL, err := resolveObjectEndpoint(endpoint)
		if err != nil {
			return nil, err
		}
		objCfg := store.ObjectStoreConfig{
			Endpoint:  resolvedEndpoint,
			UseSSL:    useSSL,
			PathStyle: true,
			LocalRoot: filepath.Join(localBase("SESSIONSTORE_OBJECT_LOCAL_PATH", "sessionstore_object_local_path"), "objectstore"),
			Profile:   profile,
		}
		objCfg.Bucket, _ = lookupEnv("SESSIONSTORE_OBJECT_BUCKET", "sessionstore_object_bucket")
		objCfg.AccessKey, _ = lookupEnv("SESSIONSTORE_OBJECT_ACCESS_KEY", "sessionstore_object_access_key")
		objCfg.SecretKey, _ = lookupEnv("SESSIONSTORE_OBJECT_SECRET_KEY", "sessionstore_object_secret_key")
		objCfg.Region, _ = lookupEnv("SESSIONSTORE_OBJECT_REGION", "sessionstore_object_region")
		objCfg.Prefix, _ = lookupEnv("SESSIONSTORE_OBJECT_PREFIX", "sessionstore_object_prefix")
		objStore, err := store.NewObjectStore(objCfg)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err = objStore.Bootstrap(ctx); err != nil {
			return nil, err
		}
		log.Infof("object-backed session store enabled, bucket: %s", objCfg.Bucket)
		return objStore, nil
	}

	dir, err := util.ResolveSessionDir(cfg.SessionDir)
	if err != nil {
		return nil, err
	}
	return store.NewFileStore(dir, profile), nil
}

// resolveObjectEndpoint strips the scheme from endpoint and derives whether TLS is used.
func resolveObjectEndpoint(endpoint string) (string, bool, error) {
	resolved := strings.TrimSpace(endpoint)
	useSSL := true
	if strings.Contains(resolved, "://") {
		parsed, err := url.Parse(resolved)
		if err != nil {
			return "", false, fmt.Errorf("failed to parse object store endpoint %q: %w", endpoint, err)
		}
		switch strings.ToLower(parsed.Scheme) {
		case "http":
			useSSL = false
		case "https":
			useSSL = true
		default:
			return "", false, fmt.Errorf("unsupported object store scheme %q (only http and https are allowed)", parsed.Scheme)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("object store endpoint %q is missing host information", endpoint)
		}
		resolved = parsed.Host
	}
	return strings.TrimRight(resolved, "/"), useSSL, nil
}
