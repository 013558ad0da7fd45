// Package browser opens the hosted sign-in page and product images in the user's browser.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/lojinha-app/storefront/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

var linuxOpeners = []string{"xdg-open", "x-www-browser", "www-browser", "firefox", "chromium", "google-chrome"}

// run is replaced in tests.
var run = open.Run

// OpenURL opens url in the default browser, falling back to a platform command when
// the desktop integration is unavailable.
func OpenURL(url string) error {
	log.WithField("url", util.MaskURL(url)).Debug("opening browser")
	err := run(url)
	if err == nil {
		return nil
	}
	log.Debugf("open-golang failed: %v, trying platform-specific commands", err)

	cmd, errCmd := platformCommand(url)
	if errCmd != nil {
		return errCmd
	}
	if errStart := cmd.Start(); errStart != nil {
		return fmt.Errorf("failed to start browser command: %w", errStart)
	}
	return nil
}

func platformCommand(url string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	case "linux":
		for _, name := range linuxOpeners {
			if _, err := exec.LookPath(name); err == nil {
				return exec.Command(name, url), nil
			}
		}
		return nil, fmt.Errorf("no suitable browser found on Linux system")
	default:
		return nil, fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}
