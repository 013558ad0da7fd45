package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/lojinha-app/storefront/internal/config"
	"github.com/lojinha-app/storefront/internal/identity"
	"github.com/lojinha-app/storefront/internal/logging"
	"github.com/lojinha-app/storefront/internal/tui"
	"github.com/lojinha-app/storefront/internal/watcher"
	"github.com/lojinha-app/storefront/sdk/session"
	log "github.com/sirupsen/logrus"
)

// StartTUI runs the terminal storefront. The session gate decides whether it opens on
// the login or on the catalog, and follows sign-ins made by other processes through
// the session file watcher.
func StartTUI(ctx context.Context, rt *Runtime, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tui.SetLocale(rt.Config.Locale)

	hook := tui.NewLogHook(2000, log.GetLevel())
	hook.SetFormatter(&logging.LogFormatter{})
	log.AddHook(hook)

	origStdout := os.Stdout
	origStderr := os.Stderr
	origLogOutput := log.StandardLogger().Out
	if !rt.Config.LoggingToFile {
		log.SetOutput(io.Discard)
	}
	devNull, errOpenDevNull := os.Open(os.DevNull)
	if errOpenDevNull == nil {
		os.Stdout = devNull
		os.Stderr = devNull
	}
	restoreIO := func() {
		os.Stdout = origStdout
		os.Stderr = origStderr
		log.SetOutput(origLogOutput)
		if devNull != nil {
			_ = devNull.Close()
		}
	}
	defer restoreIO()

	router := tui.NewRouter()
	gate := session.NewGate(rt.Provider, router)
	defer gate.Dispose()
	stopWatch := gate.Watch(func(state session.State) {
		log.WithFields(log.Fields{"component": "session", "state": state.Kind, "seq": state.Seq}).Debug("session state changed")
	})
	defer stopWatch()

	if path := rt.Store.Path(); path != "" {
		fileWatcher, errWatcher := watcher.NewWatcher(configPath, path, rt.Hub, func(_ *config.Config) {
			log.WithField("component", "config").Info("configuration reloaded; connection settings apply on restart")
		})
		if errWatcher != nil {
			log.Warnf("session watcher disabled: %v", errWatcher)
		} else {
			fileWatcher.SetConfig(rt.Config)
			if errStart := fileWatcher.Start(ctx); errStart != nil {
				log.Warnf("session watcher disabled: %v", errStart)
			} else {
				defer func() {
					if errStop := fileWatcher.Stop(); errStop != nil {
						log.Errorf("failed to stop watcher: %v", errStop)
					}
				}()
			}
		}
	}

	// Resolve in the background; the splash screen shows until the gate navigates.
	go gate.Initialize(ctx)

	options := tui.Options{
		Service: rt.Service,
		Router:  router,
		Hook:    hook,
		Output:  origStdout,
	}
	if rt.Config.AuthConfigured() {
		options.BrowserSignIn = func(ctx context.Context) error {
			_, err := rt.Provider.SignInWithBrowser(ctx, identity.DefaultBrowserTimeout)
			return err
		}
	}
	if rt.Catalog != nil {
		options.Feed = rt.Catalog
	}

	if errRun := tui.Run(ctx, options); errRun != nil {
		return fmt.Errorf("TUI error: %w", errRun)
	}
	return nil
}
