// config.go - Haupt-Konfigurationsfunktionen fuer den DDPM-Server
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (DDPM_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (DDPM_ORIGINS)
// - SessionTTL: Leerlaufzeit bis Sitzungen verfallen (DDPM_SESSION_TTL)
// - Seed: Startwert fuer den Zufallsgenerator (DDPM_SEED)
// - LogLevel: Gibt Log-Level zurueck (DDPM_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Plan-, Modell- und Sitzungsparameter
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via DDPM_HOST
// Default: http://127.0.0.1:11500
func Host() *url.URL {
	defaultPort := "11500"

	s := strings.TrimSpace(Var("DDPM_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via DDPM_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("DDPM_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	origins = append(origins, "app://*", "file://*")
	return origins
}

// SessionTTL gibt die Leerlaufzeit zurueck, nach der eine Sitzung verfaellt
// Konfigurierbar via DDPM_SESSION_TTL (Dauer oder Sekunden)
// Default: 0 = kein Verfall
func SessionTTL() time.Duration {
	return Duration("DDPM_SESSION_TTL", 0)()
}

// Seed gibt den Startwert fuer Rauschen zurueck
// Konfigurierbar via DDPM_SEED
// 0 (Default) bedeutet zeitbasiert
func Seed() uint64 {
	return Uint64("DDPM_SEED", 0)()
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via DDPM_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("DDPM_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
