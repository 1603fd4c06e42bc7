package parser

import (
	"regexp"
	"strings"
)

var (
	// key=value | key="quoted value" | key='quoted value'
	kvRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_.\-]*)=("(?:[^"\\]|\\.)*"|'[^']*'|[^\s"']\S*|)`)
	// key:"value"; as emitted by Check Point's syslog exporter
	colonQuotedRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_\-]*):"((?:[^"\\]|\\.)*)"`)
	// start of a key= token in a space separated attribute list
	spacedKeyRe = regexp.MustCompile(`(?:^|\s)([A-Za-z_][A-Za-z0-9_.\-]*)=`)
)

// parseKV collects key=value pairs anywhere in text. Keys are lower-cased,
// values unquoted; a repeated key keeps its first value.
func parseKV(text string) map[string]string {
	kv := make(map[string]string)
	for _, m := range kvRe.FindAllStringSubmatch(text, -1) {
		key := strings.ToLower(m[1])
		if _, seen := kv[key]; seen {
			continue
		}
		kv[key] = unquote(m[2])
	}
	return kv
}

// parseColonQuoted collects key:"value" pairs into kv without overwriting.
func parseColonQuoted(text string, kv map[string]string) {
	for _, m := range colonQuotedRe.FindAllStringSubmatch(text, -1) {
		key := strings.ToLower(m[1])
		if _, seen := kv[key]; seen {
			continue
		}
		kv[key] = unescape(m[2])
	}
}

// parseDelimitedKV splits text on delim into key=value attributes.
func parseDelimitedKV(text, delim string, kv map[string]string) {
	for _, part := range strings.Split(text, delim) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, seen := kv[k]; seen {
			continue
		}
		kv[k] = strings.TrimSpace(v)
	}
}

// parseSpacedKV splits space separated key=value attributes. A value runs
// up to the next key= token, so values may contain spaces.
func parseSpacedKV(text string, kv map[string]string) {
	ms := spacedKeyRe.FindAllStringSubmatchIndex(text, -1)
	for i, m := range ms {
		end := len(text)
		if i+1 < len(ms) {
			end = ms[i+1][0]
		}
		k := strings.ToLower(text[m[2]:m[3]])
		if _, seen := kv[k]; seen {
			continue
		}
		kv[k] = strings.TrimSpace(text[m[1]:end])
	}
}

func unquote(v string) string {
	if len(v) >= 2 {
		switch {
		case v[0] == '"' && v[len(v)-1] == '"':
			return unescape(v[1 : len(v)-1])
		case v[0] == '\'' && v[len(v)-1] == '\'':
			return v[1 : len(v)-1]
		}
	}
	return v
}

func unescape(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	return strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(v)
}

// splitHostPort splits "ip:port[:iface]" values. Anything after the port is
// returned as the interface.
func splitHostPort(v string) (ip, port, iface string) {
	parts := strings.SplitN(v, ":", 3)
	ip = parts[0]
	if len(parts) > 1 {
		port = parts[1]
	}
	if len(parts) > 2 {
		iface = parts[2]
	}
	return ip, port, iface
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
