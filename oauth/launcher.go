package oauth

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Launcher opens an authorization URL in a user-agent the user can complete
// the flow in. Open is fire-and-forget: a nil error means the request to
// open the URL was dispatched, not that the user-agent finished loading it.
type Launcher interface {
	Open(url string) error
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(url string) error

// Open implements the Launcher interface
func (f LauncherFunc) Open(url string) error { return f(url) }

// BrowserLauncher opens URLs in the host's default browser.
type BrowserLauncher struct{}

// Open the URL in the default browser of the user.
func (BrowserLauncher) Open(url string) error {
	const op = "oauth.BrowserLauncher.Open"
	var cmd string
	var args []string
	switch {
	case runtime.GOOS == "windows" || isWSL():
		cmd = "cmd.exe"
		args = []string{"/c", "start"}
		url = strings.ReplaceAll(url, "&", "^&")
	case runtime.GOOS == "darwin":
		cmd = "open"
	default: // "linux", "freebsd", "openbsd", "netbsd"
		cmd = "xdg-open"
	}
	args = append(args, url)
	if err := exec.Command(cmd, args...).Start(); err != nil {
		return fmt.Errorf("%s: unable to open browser: %w", op, err)
	}
	return nil
}

// isWSL tests if the binary is being run in Windows Subsystem for Linux
func isWSL() bool {
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		return false
	}
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}
