package config

const placeholder = "***"

// RedactedConfig returns a copy of cfg safe for logging: passwords, object
// storage credentials, and the API key are replaced with a placeholder, and
// mutable slices and maps are copied so the caller cannot alias the original.
func RedactedConfig(cfg Config) Config {
	out := cfg

	out.Postgres.DSN = redact(cfg.Postgres.DSN)
	out.Postgres.Password = redact(cfg.Postgres.Password)
	out.Redis.Password = redact(cfg.Redis.Password)
	out.S3.AccessKey = redact(cfg.S3.AccessKey)
	out.S3.SecretKey = redact(cfg.S3.SecretKey)
	out.Server.APIKey = redact(cfg.Server.APIKey)

	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Engine.Assets = append([]string(nil), cfg.Engine.Assets...)
	out.Engine.FeeRecipients = append([]FeeRecipientConfig(nil), cfg.Engine.FeeRecipients...)

	if cfg.Engine.PriceFeeds != nil {
		feeds := make(map[string]string, len(cfg.Engine.PriceFeeds))
		for k, v := range cfg.Engine.PriceFeeds {
			feeds[k] = v
		}
		out.Engine.PriceFeeds = feeds
	}

	return out
}

// redact replaces a non-empty secret with a placeholder. Empty values stay
// empty so a log line still shows whether the secret was configured at all.
func redact(s string) string {
	if s == "" {
		return ""
	}
	return placeholder
}
