package watcher

import (
	"fmt"
	"time"

	"github.com/lojinha-app/storefront/internal/config"
	"github.com/lojinha-app/storefront/internal/util"
	log "github.com/sirupsen/logrus"
)

func (w *Watcher) stopConfigReloadTimer() {
	w.configReloadMu.Lock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
		w.configReloadTimer = nil
	}
	w.configReloadMu.Unlock()
}

func (w *Watcher) scheduleConfigReload() {
	w.configReloadMu.Lock()
	defer w.configReloadMu.Unlock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
	}
	w.configReloadTimer = time.AfterFunc(configReloadDebounce, func() {
		w.configReloadMu.Lock()
		w.configReloadTimer = nil
		w.configReloadMu.Unlock()
		w.reloadConfigIfChanged()
	})
}

func (w *Watcher) reloadConfigIfChanged() {
	newHash, err := fileHash(w.configPath)
	if err != nil {
		log.Errorf("failed to read config file for hash check: %v", err)
		return
	}
	if newHash == "" {
		log.Debugf("ignoring empty config file write event")
		return
	}

	w.mu.Lock()
	currentHash := w.lastConfigHash
	w.mu.Unlock()
	if currentHash == newHash {
		log.Debugf("config file content unchanged (hash match), skipping reload")
		return
	}

	log.Infof("config file changed, reloading: %s", w.configPath)
	if w.reloadConfig() {
		w.mu.Lock()
		w.lastConfigHash = newHash
		w.mu.Unlock()
	}
}

func (w *Watcher) reloadConfig() bool {
	newConfig, errLoadConfig := config.LoadConfig(w.configPath)
	if errLoadConfig != nil {
		log.Errorf("failed to reload config: %v", errLoadConfig)
		return false
	}

	w.mu.Lock()
	oldConfig := w.config
	w.config = newConfig
	w.mu.Unlock()

	util.SetLogLevel(newConfig)
	if details := configChangeDetails(oldConfig, newConfig); len(details) > 0 {
		log.Debugf("config changes detected:")
		for _, d := range details {
			log.Debugf("  %s", d)
		}
	}

	if w.reloadCallback != nil {
		w.reloadCallback(newConfig)
	}
	return true
}

// configChangeDetails lists the settings that differ between two configurations.
// Secrets are reported as changed without their values.
func configChangeDetails(oldCfg, newCfg *config.Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var details []string
	add := func(name string, oldValue, newValue any) {
		if oldValue != newValue {
			details = append(details, fmt.Sprintf("%s: %v -> %v", name, oldValue, newValue))
		}
	}
	secret := func(name, oldValue, newValue string) {
		if oldValue != newValue {
			details = append(details, name+": updated")
		}
	}

	add("debug", oldCfg.Debug, newCfg.Debug)
	add("logging-to-file", oldCfg.LoggingToFile, newCfg.LoggingToFile)
	add("locale", oldCfg.Locale, newCfg.Locale)
	add("session-dir", oldCfg.SessionDir, newCfg.SessionDir)
	secret("proxy-url", oldCfg.ProxyURL, newCfg.ProxyURL)
	add("auth.client-id", oldCfg.Auth.ClientID, newCfg.Auth.ClientID)
	secret("auth.client-secret", oldCfg.Auth.ClientSecret, newCfg.Auth.ClientSecret)
	add("auth.token-url", oldCfg.Auth.TokenURL, newCfg.Auth.TokenURL)
	add("api.endpoint", oldCfg.API.Endpoint, newCfg.API.Endpoint)
	add("api.realtime-endpoint", oldCfg.API.RealtimeEndpoint, newCfg.API.RealtimeEndpoint)
	secret("api.api-key", oldCfg.API.APIKey, newCfg.API.APIKey)
	add("api.page-size", oldCfg.API.PageSize, newCfg.API.PageSize)
	add("storage.endpoint", oldCfg.Storage.Endpoint, newCfg.Storage.Endpoint)
	add("storage.bucket", oldCfg.Storage.Bucket, newCfg.Storage.Bucket)
	add("storage.access-level", oldCfg.Storage.AccessLevel, newCfg.Storage.AccessLevel)
	secret("storage.secret-key", oldCfg.Storage.SecretKey, newCfg.Storage.SecretKey)
	add("storage.url-expiry", oldCfg.Storage.URLExpiry, newCfg.Storage.URLExpiry)
	return details
}
