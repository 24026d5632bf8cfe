// Package docs holds the help topics of yspy.
package docs

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed *.md
var files embed.FS

// Index is the topic listing every other one.
const Index = "readme"

// Topic returns the markdown of a topic.
func Topic(name string) (string, error) {
	b, err := files.ReadFile(name + ".md")
	if err != nil {
		return "", fmt.Errorf("topic %q not found: %w", name, err)
	}
	return string(b), nil
}

// Topics concatenates the named topics. "*" stands for all of them but the index.
func Topics(names ...string) (string, error) {
	var b strings.Builder
	for _, name := range names {
		expanded := []string{name}
		if name == "*" {
			expanded = All()
		}
		for _, n := range expanded {
			doc, err := Topic(n)
			if err != nil {
				return "", err
			}
			b.WriteString(doc)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// All lists the topic names in alphabetical order, without the index.
func All() []string {
	entries, _ := fs.Glob(files, "*.md")
	var names []string
	for _, e := range entries {
		if n := strings.TrimSuffix(path.Base(e), ".md"); n != Index {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
