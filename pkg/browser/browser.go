// Package browser opens instance pages in the user's default browser.
package browser

import (
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Launcher starts an external program without waiting for it.
type Launcher func(name string, args ...string) error

func startCommand(name string, args ...string) error {
	return exec.Command(name, args...).Start() // #nosec G204 -- URL validated before launch
}

// Open opens urlString in the default browser.
func Open(urlString string) error {
	return OpenWith(runtime.GOOS, urlString, startCommand)
}

// OpenWith validates urlString and hands it to launch with the command for
// goos. Only http and https URLs with a host are accepted.
func OpenWith(goos, urlString string, launch Launcher) error {
	if err := Validate(urlString); err != nil {
		return err
	}

	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return launch("xdg-open", urlString)
	case "darwin":
		return launch("open", urlString)
	case "windows":
		return launch("rundll32", "url.dll,FileProtocolHandler", urlString)
	default:
		return errors.Errorf("unsupported platform: %s", goos)
	}
}

// Validate rejects anything that is not a plain http(s) URL.
func Validate(urlString string) error {
	if strings.ContainsAny(urlString, "\x00\r\n") {
		return errors.New("invalid URL: control characters")
	}
	parsed, err := url.Parse(urlString)
	if err != nil {
		return errors.Wrap(err, "invalid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.Errorf("unsupported URL scheme: %q (only http and https allowed)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("invalid URL: missing host")
	}
	return nil
}

// ApplicationSettingsURL is the page where a user creates an application
// and copies its access token.
func ApplicationSettingsURL(host string) string {
	u := url.URL{
		Scheme: "https",
		Host:   host,
		Path:   "/settings/applications/new",
	}
	return u.String()
}
