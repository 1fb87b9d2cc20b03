// Package route decides which backend an inbound request path is forwarded to.
package route

import "strings"

// Target names a backend service.
type Target string

// Known targets. Health is answered by the gateway itself and never forwarded.
const (
	TargetHealth Target = "health"
	TargetAPI    Target = "api"
	TargetAI     Target = "ai"
	TargetWeb    Target = "web"
)

// HealthPath is the only path the gateway answers locally.
const HealthPath = "/health"

// aiPrefix is stripped from AI paths before forwarding.
const aiPrefix = "/ai"

// Decision is the outcome of routing one path.
type Decision struct {
	Target Target
	// Path is the path to send upstream. It is never empty for forwarded targets.
	Path string
	// Rule is the name of the rule that matched, for logs and metrics.
	Rule string
}

// Rule is one entry of the ordered routing table.
type Rule struct {
	Name    string
	Match   func(path string) bool
	Target  Target
	Rewrite func(path string) string // nil keeps the path unchanged
}

// Router evaluates its rules top to bottom; the first match wins. Paths that
// match no rule go to the fallback target unchanged, so routing is total.
type Router struct {
	rules    []Rule
	fallback Target
}

// New returns the gateway's routing table. fallback is the target for paths
// that match no explicit rule (TargetAPI, or TargetWeb when a web frontend is
// configured).
func New(fallback Target) *Router {
	return &Router{
		rules: []Rule{
			{Name: "health", Match: isHealth, Target: TargetHealth},
			{Name: "api", Match: under("/api"), Target: TargetAPI},
			{Name: "ai", Match: at(aiPrefix, under(aiPrefix)), Target: TargetAI, Rewrite: StripAIPrefix},
		},
		fallback: fallback,
	}
}

// Fallback returns the target used when no rule matches.
func (r *Router) Fallback() Target {
	return r.fallback
}

// Resolve maps a request path to its destination. Method is irrelevant to routing.
func (r *Router) Resolve(path string) Decision {
	for _, rule := range r.rules {
		if !rule.Match(path) {
			continue
		}
		out := path
		if rule.Rewrite != nil {
			out = rule.Rewrite(path)
		}
		return Decision{Target: rule.Target, Path: out, Rule: rule.Name}
	}
	return Decision{Target: r.fallback, Path: path, Rule: "fallback"}
}

func isHealth(path string) bool {
	return path == HealthPath
}

// under matches paths strictly below prefix, i.e. "/x/...".
func under(prefix string) func(string) bool {
	withSlash := prefix + "/"
	return func(path string) bool {
		return strings.HasPrefix(path, withSlash)
	}
}

// at extends match to also accept the bare prefix itself.
func at(prefix string, match func(string) bool) func(string) bool {
	return func(path string) bool {
		return path == prefix || match(path)
	}
}

// StripAIPrefix removes the literal "/ai" prefix and leaves the remainder
// untouched. The bare path "/ai" strips to "", which is sent as "/".
func StripAIPrefix(path string) string {
	rest, ok := strings.CutPrefix(path, aiPrefix)
	if !ok {
		return path
	}
	if rest == "" {
		return "/"
	}
	return rest
}
