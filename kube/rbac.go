package kube

import (
	"fmt"
	"regexp"
	"strings"
)

// SuggestedRule is a minimal RBAC rule that would unblock the denied verb.
type SuggestedRule struct {
	APIGroups []string `json:"apiGroups"`
	Resources []string `json:"resources"`
	Verbs     []string `json:"verbs"`
}

// ForbiddenInfo is the parsed shape of a kubectl Forbidden error.
type ForbiddenInfo struct {
	User          string         `json:"user"`
	Verb          string         `json:"verb"`
	Resource      string         `json:"resource"`
	APIGroup      string         `json:"api_group"`
	Namespace     string         `json:"namespace,omitempty"`
	Scope         string         `json:"scope"`
	SuggestedRule *SuggestedRule `json:"suggested_rule,omitempty"`
	Hint          string         `json:"hint,omitempty"`
}

// forbiddenRe matches the apiserver's Forbidden message, e.g.
//
//	User "system:serviceaccount:ml:tg" cannot patch resource "deployments"
//	in API group "apps" in the namespace "ml-prod"
//
// with an optional resource name segment and a cluster-scope variant.
var forbiddenRe = regexp.MustCompile(
	`User "([^"]+)" cannot (\w+) resource "([^"]+)"(?: named "[^"]+")? in API group "([^"]*)"` +
		`(?: (?:in the namespace "([^"]+)"|at the cluster scope))?`)

// ParseForbidden extracts the denied principal, verb and resource from a
// Forbidden stderr. Returns false when the text does not match.
func ParseForbidden(stderr string) (ForbiddenInfo, bool) {
	m := forbiddenRe.FindStringSubmatch(stderr)
	if m == nil {
		return ForbiddenInfo{}, false
	}
	info := ForbiddenInfo{
		User:     m[1],
		Verb:     m[2],
		Resource: m[3],
		APIGroup: m[4],
	}
	if m[5] != "" {
		info.Namespace = m[5]
		info.Scope = "namespace"
	} else if strings.Contains(stderr, "at the cluster scope") {
		info.Scope = "cluster"
	} else {
		info.Scope = "namespace"
	}
	info.SuggestedRule = &SuggestedRule{
		APIGroups: []string{info.APIGroup},
		Resources: []string{info.Resource},
		Verbs:     []string{info.Verb},
	}
	info.Hint = buildHint(info)
	return info, true
}

func buildHint(info ForbiddenInfo) string {
	group := info.APIGroup
	if group == "" {
		group = `""`
	}
	if info.Scope == "cluster" {
		return fmt.Sprintf(
			"grant %q the %q verb on %q (apiGroup %s) via a ClusterRole and ClusterRoleBinding",
			info.User, info.Verb, info.Resource, group)
	}
	ns := info.Namespace
	if ns == "" {
		ns = "<namespace>"
	}
	return fmt.Sprintf(
		"grant %q the %q verb on %q (apiGroup %s) in namespace %q via a Role and RoleBinding",
		info.User, info.Verb, info.Resource, group, ns)
}
