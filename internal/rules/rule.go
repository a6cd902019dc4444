// Package rules implements the rule data model, the rule-file parser,
// and the predicate matcher that together form the udev-like rule
// language this daemon evaluates against incoming devices.
package rules

// Rule is one parsed directive line: match predicates, assignments,
// an action-keyed command table, and control-flow flags.
type Rule struct {
	// Match predicates.
	Action    string
	Kernel    string
	Subsystem string
	Driver    string
	Devpath   string
	Tag       string
	Attr      []KV // ATTR{path}==value
	Env       []KV // ENV{key}==value

	// Assignments.
	Name    string
	Owner   string
	Group   string
	Mode    string
	Symlink []string
	Program string

	// Run table: action name -> ordered shell commands.
	Run map[string][]string

	// Control flow.
	Label        string
	Goto         string
	IgnoreDevice bool
	LastRule     bool
}

// KV is an ordered key/value predicate pair (ATTR{} or ENV{}).
type KV struct {
	Key   string
	Value string
}

// HasPredicate reports whether the rule declares at least one match
// predicate. A rule with none is inert and never matches.
func (r Rule) HasPredicate() bool {
	return r.Action != "" || r.Kernel != "" || r.Subsystem != "" ||
		r.Driver != "" || r.Devpath != "" || r.Tag != "" ||
		len(r.Attr) > 0 || len(r.Env) > 0
}

// RunCommands returns the ordered shell commands for the given device
// action name ("add", "remove", "bind", "unbind", ...), or nil.
func (r Rule) RunCommands(action string) []string {
	return r.Run[action]
}

// List is an ordered, immutable sequence of rules produced by one
// parse pass. Readers obtain a List reference and hold it for the
// duration of one event's processing.
type List []Rule
