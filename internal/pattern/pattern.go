package pattern

import (
	"regexp"
)

// Canonical format names. Generic is the unconditional fallback and must
// always be present in the registry.
const (
	ApacheCombined = "apache_combined"
	ApacheCommon   = "apache_common"
	NginxAccess    = "nginx_access"
	Syslog         = "syslog"
	Application    = "application"
	ErrorLog       = "error_log"
	CustomLog      = "custom_log"
	JSONLog        = "json_log"
	JSONArray      = "json_array"
	Generic        = "generic"
)

// Pattern is one immutable log-format descriptor: a compiled regex with
// named capture groups and the set of fields it declares.
type Pattern struct {
	Name       string
	Confidence float64 // fixed parsing-quality score for this format
	regex      *regexp.Regexp
	fields     []string
}

// Fields returns the declared field names in capture order.
func (p *Pattern) Fields() []string {
	out := make([]string, len(p.fields))
	copy(out, p.fields)
	return out
}

// Matches reports whether the line conforms to the pattern.
func (p *Pattern) Matches(line string) bool {
	return p.regex.MatchString(line)
}

// Capture applies the pattern and returns the named groups. Every declared
// field is present in the result; groups the line did not supply map to "".
func (p *Pattern) Capture(line string) (map[string]string, bool) {
	match := p.regex.FindStringSubmatch(line)
	if match == nil {
		return nil, false
	}
	out := make(map[string]string, len(p.fields))
	for _, name := range p.fields {
		out[name] = ""
	}
	for i, name := range p.regex.SubexpNames() {
		if i != 0 && name != "" {
			out[name] = match[i]
		}
	}
	return out, true
}

func newPattern(name string, confidence float64, expr string) *Pattern {
	re := regexp.MustCompile(expr)
	var fields []string
	for i, n := range re.SubexpNames() {
		if i != 0 && n != "" {
			fields = append(fields, n)
		}
	}
	return &Pattern{Name: name, Confidence: confidence, regex: re, fields: fields}
}

// Registry is the fixed, ordered set of known log formats. Order is priority
// order: more specific formats come before looser ones, and ties in match
// rate are broken by position.
type Registry struct {
	patterns []*Pattern
	byName   map[string]*Pattern
}

// NewRegistry builds the registry. The set is defined at process start and
// never changes afterwards.
func NewRegistry() *Registry {
	patterns := []*Pattern{
		newPattern(ApacheCombined, 0.95,
			`^(?P<ip>\S+) \S+ \S+ \[(?P<timestamp>[^\]]+)\] "(?P<method>\S+) (?P<path>\S+)(?: (?P<protocol>[^"]*))?" (?P<status>\d{3}) (?P<bytes>\d+|-) "(?P<referrer>[^"]*)" "(?P<user_agent>[^"]*)"`),
		newPattern(ApacheCommon, 0.95,
			`^(?P<ip>\S+) \S+ \S+ \[(?P<timestamp>[^\]]+)\] "(?P<method>\S+) (?P<path>\S+)(?: (?P<protocol>[^"]*))?" (?P<status>\d{3}) (?P<bytes>\d+|-)\s*$`),
		newPattern(NginxAccess, 0.90,
			`^(?P<ip>\S+) - (?P<user>\S+) \[(?P<timestamp>[^\]]+)\] "(?P<method>\S+) (?P<path>\S+)(?: (?P<protocol>[^"]*))?" (?P<status>\d{3}) (?P<bytes>\d+) "(?P<referrer>[^"]*)" "(?P<user_agent>[^"]*)"`),
		newPattern(Syslog, 0.85,
			`^(?P<timestamp>[A-Z][a-z]{2}\s+\d{1,2} \d{2}:\d{2}:\d{2}) (?P<host>\S+) (?P<process>[^\s:\[]+)(?:\[(?P<pid>\d+)\])?: (?P<message>.*)$`),
		newPattern(Application, 0.85,
			`^(?P<timestamp>\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:[.,]\d{3})?)\s+(?P<level>[A-Za-z]+)\s+(?P<logger>\S+)\s+-\s+(?P<message>.*)$`),
		newPattern(ErrorLog, 0.80,
			`^(?P<timestamp>\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2})\s+\[(?P<level>\w+)\]\s+(?P<message>.*)$`),
		newPattern(CustomLog, 0.75,
			`^(?P<timestamp>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?)\s+(?P<level>\w+)\s+(?P<source>\S+)\s+(?P<message>.*)$`),
		newPattern(JSONLog, 0.90,
			`^\s*\{.*\}\s*$`),
		newPattern(JSONArray, 0.90,
			`^\s*\[.*\]\s*$`),
		// Everything is optional here so the fallback can never fail.
		newPattern(Generic, 0.60,
			`^(?:(?P<timestamp>\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:[.,]\d{1,6})?(?:Z|[+-]\d{2}:?\d{2})?)\s*)?(?:.*?(?P<level>DEBUG|INFO|WARN|WARNING|ERROR|FATAL|TRACE)\s*)?(?P<message>.*)$`),
	}

	byName := make(map[string]*Pattern, len(patterns))
	for _, p := range patterns {
		byName[p.Name] = p
	}
	return &Registry{patterns: patterns, byName: byName}
}

// Patterns returns the registry contents in priority order.
func (r *Registry) Patterns() []*Pattern {
	out := make([]*Pattern, len(r.patterns))
	copy(out, r.patterns)
	return out
}

// Lookup returns the pattern registered under name.
func (r *Registry) Lookup(name string) (*Pattern, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Fallback returns the generic pattern.
func (r *Registry) Fallback() *Pattern {
	return r.byName[Generic]
}

// Names returns the registered format names in priority order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.patterns))
	for _, p := range r.patterns {
		out = append(out, p.Name)
	}
	return out
}
