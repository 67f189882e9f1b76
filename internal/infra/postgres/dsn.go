package postgres

import (
	"fmt"
	"net/url"
	"strings"

	"html2image/internal/config"
)

func port(cfg config.PostgresConfig) int {
	if cfg.Port != 0 {
		return cfg.Port
	}
	return 5432
}

// DSN builds a postgres:// URL from cfg. A Host that already is a URL is
// returned unchanged.
func DSN(cfg config.PostgresConfig) (string, error) {
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	if cfg.Host == "" {
		return "", fmt.Errorf("postgres host is empty")
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("postgres database is empty")
	}
	if cfg.User == "" {
		return "", fmt.Errorf("postgres user is empty")
	}

	hostPort := cfg.Host
	p := port(cfg)
	// Handle IPv6 or explicit host:port strings.
	switch {
	case strings.HasPrefix(hostPort, "["):
		if !strings.Contains(hostPort, "]:") {
			hostPort = fmt.Sprintf("%s:%d", hostPort, p)
		}
	case strings.Count(hostPort, ":") >= 2:
		hostPort = fmt.Sprintf("[%s]:%d", hostPort, p)
	case !strings.Contains(hostPort, ":"):
		hostPort = fmt.Sprintf("%s:%d", hostPort, p)
	}

	u := &url.URL{Scheme: "postgres", Host: hostPort, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	q := u.Query()
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
