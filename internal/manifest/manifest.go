// Package manifest parses the per-item "contents" and "delete_contents"
// files of an item archive.
//
// A contents line is TAB-separated: the filename first, then any of
//
//	bundle:<name>
//	permissions:-r 'group'   (or -w)
//	description:<text>
//
// in any order.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/roach88/itemupdate/internal/ir"
)

// File names inside an item directory.
const (
	ContentsFile       = "contents"
	DeleteContentsFile = "delete_contents"
)

const (
	bundlePrefix      = "bundle:"
	permissionsPrefix = "permissions:"
	descriptionPrefix = "description:"
)

// PermissionAction is the access a manifest grants to a group.
type PermissionAction int

const (
	PermissionNone PermissionAction = iota
	PermissionRead
	PermissionWrite
)

func (a PermissionAction) String() string {
	switch a {
	case PermissionRead:
		return "READ"
	case PermissionWrite:
		return "WRITE"
	default:
		return "NONE"
	}
}

func (a PermissionAction) flag() string {
	if a == PermissionWrite {
		return "w"
	}
	return "r"
}

// Permission is an optional group grant. Action is PermissionNone when the
// line carried no permissions token.
type Permission struct {
	Action PermissionAction
	Group  string
}

// Entry is one parsed contents line.
type Entry struct {
	Filename    string
	Bundle      string
	Permission  Permission
	Description string
}

var permissionPattern = regexp.MustCompile(`^-([rw])\s*'?([^']*)'?$`)

// ParseLine parses one contents line.
func ParseLine(line string) (Entry, error) {
	tokens := strings.Split(line, "\t")

	entry := Entry{Filename: strings.TrimSpace(tokens[0])}
	if entry.Filename == "" {
		return Entry{}, ir.NewParseError("contents", fmt.Sprintf("missing filename in line %q", line))
	}

	for _, raw := range tokens[1:] {
		token := strings.TrimSpace(raw)
		switch {
		case token == "":
			continue
		case strings.HasPrefix(token, bundlePrefix):
			entry.Bundle = strings.TrimSpace(token[len(bundlePrefix):])
		case strings.HasPrefix(token, permissionsPrefix):
			perm, err := parsePermission(strings.TrimSpace(token[len(permissionsPrefix):]))
			if err != nil {
				return Entry{}, ir.NewParseError("contents",
					fmt.Sprintf("%s in line %q", err.Error(), line))
			}
			entry.Permission = perm
		case strings.HasPrefix(token, descriptionPrefix):
			entry.Description = strings.TrimSpace(token[len(descriptionPrefix):])
		default:
			return Entry{}, ir.NewParseError("contents",
				fmt.Sprintf("unrecognized token %q in line %q", token, line))
		}
	}

	return entry, nil
}

func parsePermission(s string) (Permission, error) {
	m := permissionPattern.FindStringSubmatch(s)
	if m == nil {
		return Permission{}, fmt.Errorf("malformed permissions %q", s)
	}
	group := strings.TrimSpace(m[2])
	if group == "" {
		return Permission{}, fmt.Errorf("permissions %q name no group", s)
	}
	action := PermissionRead
	if m[1] == "w" {
		action = PermissionWrite
	}
	return Permission{Action: action, Group: group}, nil
}

// String renders e as a contents line that ParseLine reads back unchanged.
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Filename)
	if e.Bundle != "" {
		b.WriteString("\t" + bundlePrefix + e.Bundle)
	}
	if e.Permission.Action != PermissionNone {
		fmt.Fprintf(&b, "\t%s-%s '%s'", permissionsPrefix, e.Permission.Action.flag(), e.Permission.Group)
	}
	if e.Description != "" {
		b.WriteString("\t" + descriptionPrefix + e.Description)
	}
	return b.String()
}

// ParseContents parses every non-blank line of r.
func ParseContents(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read contents: %w", err)
	}
	return entries, nil
}

// ReadContents parses the contents file at path. A missing file yields no
// entries and no error.
func ReadContents(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open contents: %w", err)
	}
	defer f.Close()

	entries, err := ParseContents(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// ParseDeleteManifest returns the trimmed, non-blank lines of r in order.
// Each line is a bitstream identifier.
func ParseDeleteManifest(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read delete manifest: %w", err)
	}
	return ids, nil
}

// ReadDeleteManifest parses the delete_contents file at path. The boolean
// is false when the file does not exist.
func ReadDeleteManifest(path string) ([]string, bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open delete manifest: %w", err)
	}
	defer f.Close()

	ids, err := ParseDeleteManifest(f)
	return ids, true, err
}

// WriteDeleteManifest writes one identifier per line.
func WriteDeleteManifest(w io.Writer, ids []string) error {
	for _, id := range ids {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return fmt.Errorf("write delete manifest: %w", err)
		}
	}
	return nil
}
