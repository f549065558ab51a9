package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/canopy-fm/canopy/internal/config"
	"github.com/canopy-fm/canopy/internal/http"
)

// promptConfirm asks a yes/no question on stdin.
func promptConfirm(question string) (bool, error) {
	fmt.Printf("%s [y/N]: ", question)

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// promptProxyPassword asks for the proxy password when the configured proxy
// mode needs one. The password lives only in memory; it is never written to
// the config file.
func promptProxyPassword(cfg *config.Config) error {
	if !http.NeedsProxyPassword(cfg) {
		return nil
	}

	fmt.Fprintf(os.Stderr, "Proxy password for %s@%s: ", cfg.ProxyUser, cfg.ProxyHost)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read proxy password: %w", err)
	}

	cfg.ProxyPassword = string(password)
	return nil
}
