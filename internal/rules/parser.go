package rules

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// tokenRe matches one KEY OP "VALUE" term: a bare directive key, an
// ENV{...}/ATTR{...} wrapped key, or OPTIONS, followed by ==, +=, or =,
// followed by a double-quoted value.
var tokenRe = regexp.MustCompile(`([A-Z_]+|ENV\{[^}]*\}|ATTR\{[^}]*\})(==|\+=|=)"([^"]*)"`)

var leadingDigits = regexp.MustCompile(`\d+`)

// OnDroppedRun, if set, is called for every RUN+= directive dropped
// because no ACTION== predicate was in effect when it was parsed.
var OnDroppedRun func(command string)

// ParseDirectories loads and parses rule files from each directory in
// order, concatenating their rule lists. Directories are read in the
// order given; within a directory, files are ordered by the ascending
// numeric value of the first run of digits in their names, and within
// a file, by line order.
func ParseDirectories(dirs []string) (List, error) {
	var all List
	for _, dir := range dirs {
		rules, err := ParseDirectory(dir)
		if err != nil {
			return nil, err
		}
		all = append(all, rules...)
	}
	return all, nil
}

// ParseDirectory parses every regular file in dir, sorted by the
// first run of decimal digits in the filename, wherever it occurs
// (files with no digits at all sort as prefix 0). An unreadable file
// is logged and skipped.
func ParseDirectory(dir string) (List, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]os.DirEntry, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e)
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return filePrefix(files[i].Name()) < filePrefix(files[j].Name())
	})

	var rules List
	for _, f := range files {
		path := filepath.Join(dir, f.Name())
		fileRules, err := ParseFile(path)
		if err != nil {
			slog.Warn("skipping unreadable rule file", "file", path, "error", err)
			continue
		}
		rules = append(rules, fileRules...)
	}
	return rules, nil
}

// filePrefix extracts the first run of decimal digits in name, or 0
// if none is present.
func filePrefix(name string) uint64 {
	match := leadingDigits.FindString(name)
	if match == "" {
		return 0
	}
	v, err := strconv.ParseUint(match, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseFile parses one rule file, one rule per non-empty,
// non-comment line.
func ParseFile(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rules List
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, ParseLine(line))
	}
	return rules, scanner.Err()
}

// ParseLine parses one rule line into a Rule. Unknown keys and
// malformed terms are silently ignored; a line with no recognised
// terms yields an inert (empty) rule rather than an error.
func ParseLine(line string) Rule {
	r := Rule{Run: make(map[string][]string)}

	for _, m := range tokenRe.FindAllStringSubmatch(line, -1) {
		key, op, val := m[1], m[2], m[3]

		switch {
		case strings.HasPrefix(key, "ENV{"):
			r.Env = append(r.Env, KV{Key: trimWrapped(key, "ENV{"), Value: val})
		case strings.HasPrefix(key, "ATTR{"):
			r.Attr = append(r.Attr, KV{Key: trimWrapped(key, "ATTR{"), Value: val})
		default:
			applyDirective(&r, key, op, val)
		}
	}

	return r
}

func trimWrapped(key, prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, prefix), "}")
}

func applyDirective(r *Rule, key, op, val string) {
	switch key + " " + op {
	case "ACTION ==":
		r.Action = val
	case "KERNEL ==":
		r.Kernel = val
	case "SUBSYSTEM ==":
		r.Subsystem = val
	case "DRIVER ==":
		r.Driver = val
	case "DEVPATH ==":
		r.Devpath = val
	case "TAG ==":
		r.Tag = val
	case "NAME ==", "NAME =":
		r.Name = val
	case "SYMLINK +=":
		r.Symlink = append(r.Symlink, val)
	case "OWNER =":
		r.Owner = val
	case "GROUP =":
		r.Group = val
	case "MODE =":
		r.Mode = val
	case "RUN +=":
		// An unqualified RUN+= inherits the rule's ACTION== predicate
		// as its key; with none set, the command is dropped (the
		// source's documented drop-with-warning semantics).
		if r.Action != "" {
			r.Run[r.Action] = append(r.Run[r.Action], val)
		} else if OnDroppedRun != nil {
			OnDroppedRun(val)
		}
	case "PROGRAM ==":
		r.Program = val
	case "LABEL =":
		r.Label = val
	case "GOTO =":
		r.Goto = val
	case "OPTIONS +=":
		switch val {
		case "ignore_device":
			r.IgnoreDevice = true
		case "last_rule":
			r.LastRule = true
		}
	}
}
