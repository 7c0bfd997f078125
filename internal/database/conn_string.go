package database

import (
	"net/url"
	"strconv"

	"github.com/rickgao/candled/internal/config"
)

// applicationName is reported to the server so candle loads are easy to
// spot in pg_stat_activity.
const applicationName = "candled"

// BuildConnString builds a PostgreSQL connection URL from config. The
// password is percent-encoded by net/url.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", applicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
