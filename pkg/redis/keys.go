package redis

import "strings"

// Keyspace namespaces every key this service writes, so one Redis can be
// shared with other services and environments.
type Keyspace string

const DefaultKeyspace Keyspace = "procurement"

func (k Keyspace) Idempotency(scope, id string) string {
	return k.join("idempotency", scope, id)
}

// Lock names the cron lock for a worker kind in one environment.
func (k Keyspace) Lock(kind, env string) string {
	if strings.TrimSpace(env) == "" {
		env = "local"
	}
	return k.join("lock", kind, env)
}

func (k Keyspace) join(parts ...string) string {
	var b strings.Builder
	b.WriteString(string(k))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
