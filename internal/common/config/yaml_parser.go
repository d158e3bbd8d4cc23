package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// parseYAML parses the specific two-level mapping used by config.yaml
func parseYAML(r io.Reader, cfg *Config) error {
	type section int
	const (
		none section = iota
		db
		rm
		sv
		jw
		en
	)

	scanner := bufio.NewScanner(r)
	var cur section

	lineNo := 0
	seenTop := map[section]bool{}

	enterSection := func(s section, name string) error {
		if seenTop[s] {
			return fmt.Errorf("line %d: duplicate %q section", lineNo, name)
		}
		seenTop[s] = true
		cur = s
		return nil
	}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		// strip comments
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}

		line := strings.TrimRight(raw, " \t\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		// top-level section? (no leading spaces)
		if line[0] != ' ' && line[0] != '\t' {
			var err error
			switch strings.TrimSpace(line) {
			case "database:":
				err = enterSection(db, "database")
			case "rabbitmq:":
				err = enterSection(rm, "rabbitmq")
			case "services:":
				err = enterSection(sv, "services")
			case "jwt:":
				err = enterSection(jw, "jwt")
			case "engine:":
				err = enterSection(en, "engine")
			default:
				err = fmt.Errorf("line %d: unknown top-level key %q", lineNo, strings.TrimSuffix(strings.TrimSpace(line), ":"))
			}
			if err != nil {
				return err
			}
			continue
		}

		// expect indented "key: value"
		if cur == none {
			return fmt.Errorf("line %d: key without a section", lineNo)
		}
		trim := strings.TrimSpace(line)
		colon := strings.IndexByte(trim, ':')
		if colon <= 0 {
			return fmt.Errorf("line %d: expected 'key: value'", lineNo)
		}
		key := strings.TrimSpace(trim[:colon])
		val := resolveScalar(trim[colon+1:])

		atoi := func(field string) (int, error) {
			n, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("line %d: %s must be int: %v", lineNo, field, err)
			}
			return n, nil
		}

		var err error
		switch cur {
		case db:
			switch key {
			case "host":
				cfg.Database.Host = val
			case "port":
				cfg.Database.Port, err = atoi("database.port")
			case "user":
				cfg.Database.User = val
			case "password":
				cfg.Database.Password = val
			case "database":
				cfg.Database.Name = val
			default:
				err = fmt.Errorf("line %d: unknown key in database: %q", lineNo, key)
			}
		case rm:
			switch key {
			case "host":
				cfg.RabbitMQ.Host = val
			case "port":
				cfg.RabbitMQ.Port, err = atoi("rabbitmq.port")
			case "user":
				cfg.RabbitMQ.User = val
			case "password":
				cfg.RabbitMQ.Password = val
			default:
				err = fmt.Errorf("line %d: unknown key in rabbitmq: %q", lineNo, key)
			}
		case sv:
			switch key {
			case "dispatch_service":
				cfg.Services.DispatchServicePort, err = atoi("services.dispatch_service")
			case "tracker_service":
				cfg.Services.TrackerServicePort, err = atoi("services.tracker_service")
			case "admin_service":
				cfg.Services.AdminServicePort, err = atoi("services.admin_service")
			default:
				err = fmt.Errorf("line %d: unknown key in services: %q", lineNo, key)
			}
		case jw:
			switch key {
			case "secret_key":
				cfg.JWT.SecretKey = val
			default:
				err = fmt.Errorf("line %d: unknown key in jwt: %q", lineNo, key)
			}
		case en:
			switch key {
			case "feed_radius_km":
				f, ferr := strconv.ParseFloat(val, 64)
				if ferr != nil {
					err = fmt.Errorf("line %d: engine.feed_radius_km must be a number: %v", lineNo, ferr)
					break
				}
				cfg.Engine.FeedRadiusKM = f
			case "grace_period_seconds":
				var n int
				if n, err = atoi("engine.grace_period_seconds"); err == nil {
					cfg.Engine.GracePeriod = time.Duration(n) * time.Second
				}
			case "delegation_timeout_minutes":
				var n int
				if n, err = atoi("engine.delegation_timeout_minutes"); err == nil {
					cfg.Engine.DelegationTimeout = time.Duration(n) * time.Minute
				}
			case "escalation_sweep_seconds":
				var n int
				if n, err = atoi("engine.escalation_sweep_seconds"); err == nil {
					cfg.Engine.EscalationSweepPeriod = time.Duration(n) * time.Second
				}
			case "default_surge":
				f, ferr := strconv.ParseFloat(val, 64)
				if ferr != nil {
					err = fmt.Errorf("line %d: engine.default_surge must be a number: %v", lineNo, ferr)
					break
				}
				cfg.Engine.DefaultSurge = f
			default:
				err = fmt.Errorf("line %d: unknown key in engine: %q", lineNo, key)
			}
		}
		if err != nil {
			return err
		}
	}

	return scanner.Err()
}

// resolveScalar trims whitespace and removes surrounding quotes from
// YAML-like scalars so values such as jwt.secret_key are not stored with
// extra quotes.
func resolveScalar(s string) string {
	s = strings.TrimSpace(s)

	n := len(s)
	if n >= 2 {
		if (s[0] == '"' && s[n-1] == '"') || (s[0] == '\'' && s[n-1] == '\'') {
			if unq, err := strconv.Unquote(s); err == nil {
				return unq
			}
			// fallback if strconv.Unquote fails (e.g., mismatched quotes)
			return s[1 : n-1]
		}
	}

	return s
}
