// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package composite

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/serversentry/serversentry/pkg/errs"
	"github.com/serversentry/serversentry/pkg/plugin"
	"github.com/serversentry/serversentry/pkg/util/log"
)

// Rule is one composite check loaded from a rule file.
type Rule struct {
	Name                string `yaml:"name"`
	Description         string `yaml:"description"`
	Enabled             bool   `yaml:"enabled"`
	Severity            string `yaml:"severity"`
	Cooldown            int    `yaml:"cooldown"` // seconds
	RuleExpression      string `yaml:"rule"`
	NotifyOnTrigger     bool   `yaml:"notify_on_trigger"`
	NotifyOnRecovery    bool   `yaml:"notify_on_recovery"`
	NotificationMessage string `yaml:"notification_message"`

	expr Expr
}

// ID returns the alert key for this rule.
func (r *Rule) ID() string {
	return "composite:" + r.Name
}

// Expr returns the compiled expression tree.
func (r *Rule) Expr() Expr {
	return r.expr
}

// MetaLookup resolves a plugin name to its declared metadata. It backs rule
// validation against the active plugin set.
type MetaLookup func(pluginName string) (plugin.Meta, bool)

// Compile parses and validates the rule expression. Every referenced plugin
// must exist and every referenced attribute must be one the plugin declares.
func (r *Rule) Compile(lookup MetaLookup) error {
	if r.Name == "" {
		return errs.Newf(errs.InvalidInput, "composite rule", "rule is missing its name")
	}
	if r.RuleExpression == "" {
		return errs.Newf(errs.InvalidInput, r.Name, "rule %s has no expression", r.Name)
	}

	expr, err := Parse(r.RuleExpression)
	if err != nil {
		return errs.New(errs.InvalidInput, r.Name, err).
			WithRemedy("fix the rule expression syntax")
	}

	if lookup != nil {
		for _, ref := range expr.References() {
			meta, ok := lookup(ref.Plugin)
			if !ok {
				return errs.Newf(errs.InvalidInput, r.Name,
					"rule %s references unknown plugin %q", r.Name, ref.Plugin).
					WithRemedy("enable the plugin or fix the reference")
			}
			if !meta.HasAttribute(ref.Attribute) {
				return errs.Newf(errs.InvalidInput, r.Name,
					"rule %s references attribute %q not produced by plugin %q", r.Name, ref.Attribute, ref.Plugin)
			}
		}
	}

	r.expr = expr
	return nil
}

// LoadDir loads every enabled rule from the .yaml/.yml files in dir. A file
// that fails to parse or validate is reported and skipped; it never aborts
// the load.
func LoadDir(dir string, lookup MetaLookup) ([]*Rule, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{errs.New(errs.NotFound, dir, err).
			WithRemedy("create the composite rule directory or fix composite_checks.config_directory")}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var rules []*Rule
	var errors []error
	for _, name := range names {
		path := filepath.Join(dir, name)
		rule, err := loadFile(path, lookup)
		if err != nil {
			errors = append(errors, err)
			log.Warnf("composite: skipping rule file %s: %s", path, err) //nolint:errcheck
			continue
		}
		if !rule.Enabled {
			log.Debugf("composite: rule %s is disabled", rule.Name)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, errors
}

func loadFile(path string, lookup MetaLookup) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.NotFound, path, err)
	}

	rule := &Rule{
		Enabled:         true,
		NotifyOnTrigger: true,
		Severity:        "high",
	}
	if err := yaml.Unmarshal(data, rule); err != nil {
		return nil, errs.New(errs.InvalidInput, path, err).
			WithRemedy("fix the rule file YAML syntax")
	}
	if err := rule.Compile(lookup); err != nil {
		return nil, err
	}
	return rule, nil
}

// Outcome is the per-tick result of evaluating one rule.
type Outcome struct {
	Rule      *Rule
	Result    TriBool
	Fired     bool // rule evaluated to true
	Recovered bool // rule transitioned true -> false
	Message   string
}

// Engine evaluates a fixed rule set and tracks the previous result per rule
// for recovery detection.
type Engine struct {
	rules []*Rule
	prev  map[string]TriBool
}

// NewEngine returns an engine over the given rules.
func NewEngine(rules []*Rule) *Engine {
	return &Engine{rules: rules, prev: make(map[string]TriBool)}
}

// Rules returns the engine's rule set.
func (e *Engine) Rules() []*Rule {
	return e.rules
}

// Evaluate runs every rule against the tick's readings. UNKNOWN never fires
// and never recovers.
func (e *Engine) Evaluate(res Resolver) []Outcome {
	outcomes := make([]Outcome, 0, len(e.rules))
	for _, rule := range e.rules {
		result := rule.expr.Eval(res)
		prev, seen := e.prev[rule.Name]

		out := Outcome{
			Rule:   rule,
			Result: result,
			Fired:  result == True,
		}
		if result == True {
			out.Message = RenderMessage(e.messageFor(rule), res)
		}
		if seen && prev == True && result == False && rule.NotifyOnRecovery {
			out.Recovered = true
		}
		// UNKNOWN leaves the previous state in place so a flapping
		// plugin does not fabricate recoveries.
		if result != Unknown {
			e.prev[rule.Name] = result
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (e *Engine) messageFor(rule *Rule) string {
	if rule.NotificationMessage != "" {
		return rule.NotificationMessage
	}
	return fmt.Sprintf("Composite rule %s triggered: %s", rule.Name, rule.RuleExpression)
}
