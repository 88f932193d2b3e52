package router

import (
	"bufio"
	"io"
	"strings"

	veil "github.com/mohanson/veil"

	"github.com/mohanson/veil/addr"
)

// ValueNotFoundError means a rule line was missing a mandatory field.
type ValueNotFoundError struct{ Line string }

func (e *ValueNotFoundError) Error() string { return "router: value not found in rule line: " + e.Line }

// InvalidExternalResourceError means a rule line's IDENT is not one of the
// rule kinds this parser recognizes.
type InvalidExternalResourceError struct{ Kind string }

func (e *InvalidExternalResourceError) Error() string {
	return "router: invalid external resource kind: " + e.Kind
}

// kindFromIdent maps the text-form IDENT token to a Kind.
func kindFromIdent(ident string) (Kind, bool) {
	switch ident {
	case "DOMAIN":
		return KindDomain, true
	case "DOMAIN-SUFFIX":
		return KindDomainSuffix, true
	case "DOMAIN-KEYWORD":
		return KindDomainKeyword, true
	case "DOMAIN-SET":
		return KindDomainSet, true
	case "IP-CIDR":
		return KindIPCIDR, true
	case "GEOIP":
		return KindGEOIP, true
	case "RULE-SET":
		return KindRuleSet, true
	case "FINAL":
		return KindFinal, true
	default:
		return 0, false
	}
}

// ParseRuleLine parses one line of the routing-rule text form (§6):
//
//	[#] IDENT , EXPR , POLICY [ // COMMENT ]
//	FINAL , POLICY [ // COMMENT ]
//
// A leading "#" disables the rule. Whitespace around commas is trimmed. A
// "//" starts the comment only at the start of the line or after whitespace,
// so the "//" of a file:// or https:// EXPR stays part of the EXPR. An
// empty line or a line that is entirely a "//"-prefixed comment yields
// ok=false with a nil error. That is not a parse failure, just nothing to add.
func ParseRuleLine(line string) (rule Rule, ok bool, err error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "//") {
		return Rule{}, false, nil
	}

	disabled := false
	if strings.HasPrefix(trimmed, "#") {
		disabled = true
		trimmed = strings.TrimSpace(trimmed[1:])
	}

	comment := ""
	for i := 0; i+1 < len(trimmed); i++ {
		if trimmed[i] == '/' && trimmed[i+1] == '/' && (i == 0 || trimmed[i-1] == ' ' || trimmed[i-1] == '\t') {
			comment = strings.TrimSpace(trimmed[i+2:])
			trimmed = strings.TrimSpace(trimmed[:i])
			break
		}
	}

	fields := splitTrim(trimmed, ",")
	if len(fields) == 0 {
		return Rule{}, false, &ValueNotFoundError{Line: line}
	}

	kind, known := kindFromIdent(fields[0])
	if !known {
		return Rule{}, false, &InvalidExternalResourceError{Kind: fields[0]}
	}

	if kind == KindFinal {
		if len(fields) < 2 {
			return Rule{}, false, &ValueNotFoundError{Line: line}
		}
		return Rule{Disabled: disabled, Kind: KindFinal, Policy: fields[1], Comment: comment}, true, nil
	}

	if len(fields) < 2 {
		return Rule{}, false, &ValueNotFoundError{Line: line}
	}
	expr := fields[1]
	policy := ""
	if len(fields) >= 3 {
		policy = fields[2]
	}

	r := Rule{Disabled: disabled, Kind: kind, Expression: expr, Policy: policy, Comment: comment}
	if kind == KindIPCIDR {
		cidr, err := addr.ParseCIDR(expr)
		if err != nil {
			return Rule{}, false, veil.NewError(veil.KindProtocolViolation, "router: parse IP-CIDR", err)
		}
		r = r.WithCIDR(cidr)
	}
	return r, true, nil
}

func splitTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseRuleList parses a full routing-rule document: one rule per line,
// blank lines and full-line comments ignored. It does not resolve
// DOMAIN-SET/RULE-SET children; call a Loader for that.
func ParseRuleList(r io.Reader) ([]Rule, error) {
	var rules []Rule
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		rule, ok, err := ParseRuleLine(scanner.Text())
		if err != nil {
			return nil, err
		}
		if ok {
			rules = append(rules, rule)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, veil.NewError(veil.KindResourceError, "router: read rule list", err)
	}
	return rules, nil
}

// ParseDomainSet parses a DOMAIN-SET resource (§4.6, §6 "External
// resources"): one entry per line, "#" or ";" prefixed lines are comments, a
// leading "." means "self or subdomain" (DOMAIN-SUFFIX semantics), anything
// else is an exact DOMAIN match. Every produced Rule carries policy.
func ParseDomainSet(r io.Reader, policy string) ([]Rule, error) {
	var rules []Rule
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, ".") {
			rules = append(rules, Rule{Kind: KindDomainSuffix, Expression: line[1:], Policy: policy})
		} else {
			rules = append(rules, Rule{Kind: KindDomain, Expression: line, Policy: policy})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, veil.NewError(veil.KindResourceError, "router: read domain-set", err)
	}
	return rules, nil
}
