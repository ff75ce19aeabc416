// Package filter selects bitstreams for bulk deletion.
//
// A Filter is one of a closed set of kinds, built by name from a flat
// property map. Required properties are checked on first use, not at
// construction, so a filter can be built before its configuration file is
// read; the first resolution error is remembered and returned by every
// later call.
package filter

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/repo"
)

// Kind identifies the filter variant.
type Kind int

const (
	KindBundleName Kind = iota
	KindFilenamePattern
	KindBundleSet
	KindFilenameGlob
)

func (k Kind) String() string {
	switch k {
	case KindBundleName:
		return "bundle"
	case KindFilenamePattern:
		return "filename"
	case KindBundleSet:
		return "bundle-set"
	case KindFilenameGlob:
		return "glob"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Property keys.
const (
	PropBundle   = "bundle"
	PropFilename = "filename"
	PropGlob     = "glob"
)

// Properties configure a filter.
type Properties map[string]string

// BundleLookup is the capability a filter needs to evaluate bundle
// membership.
type BundleLookup interface {
	BundlesOf(ctx context.Context, bitstreamID int64) ([]repo.Bundle, error)
}

// Filter accepts or rejects bitstreams.
type Filter struct {
	name  string
	kind  Kind
	props Properties

	// fixed is the bundle set for KindBundleSet or a preset bundle name.
	fixed []string

	once    sync.Once
	err     error
	bundle  string
	pattern *regexp.Regexp
	glob    string
}

// Name returns the registry name the filter was built under.
func (f *Filter) Name() string { return f.name }

// Kind returns the filter variant.
func (f *Filter) Kind() Kind { return f.kind }

type constructor func(name string, props Properties) *Filter

var registry = map[string]constructor{
	"bundle": func(name string, p Properties) *Filter {
		return &Filter{name: name, kind: KindBundleName, props: p}
	},
	"filename": func(name string, p Properties) *Filter {
		return &Filter{name: name, kind: KindFilenamePattern, props: p}
	},
	"glob": func(name string, p Properties) *Filter {
		return &Filter{name: name, kind: KindFilenameGlob, props: p}
	},
	"original-with-derivatives": func(name string, p Properties) *Filter {
		return &Filter{name: name, kind: KindBundleSet, props: p,
			fixed: []string{repo.BundleOriginal, repo.BundleText, repo.BundleThumbnail}}
	},
	"original": func(name string, p Properties) *Filter {
		return &Filter{name: name, kind: KindBundleName, props: p, fixed: []string{repo.BundleOriginal}}
	},
	"thumbnail": func(name string, p Properties) *Filter {
		return &Filter{name: name, kind: KindBundleName, props: p, fixed: []string{repo.BundleThumbnail}}
	},
}

// Names lists the registered filter names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the filter registered under name. Unknown names are a CONFIG
// error.
func New(name string, props Properties) (*Filter, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, ir.NewConfigError("filter",
			fmt.Sprintf("unknown filter %q (known: %v)", name, Names()), nil)
	}
	if props == nil {
		props = Properties{}
	}
	return ctor(name, props), nil
}

// LoadProperties reads a YAML mapping of property names to values.
func LoadProperties(path string) (Properties, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ir.NewConfigError("filter properties", "cannot read file", err)
	}
	var props Properties
	if err := yaml.Unmarshal(data, &props); err != nil {
		return nil, ir.NewConfigError("filter properties", path, err)
	}
	return props, nil
}

func (f *Filter) resolve() error {
	f.once.Do(func() {
		switch f.kind {
		case KindBundleName:
			if len(f.fixed) > 0 {
				f.bundle = f.fixed[0]
				return
			}
			f.bundle, f.err = f.require(PropBundle)
		case KindFilenamePattern:
			var expr string
			if expr, f.err = f.require(PropFilename); f.err != nil {
				return
			}
			re, err := regexp.Compile(`^(?:` + expr + `)$`)
			if err != nil {
				f.err = ir.NewFilterError(ir.CodeInvalidProperty, f.name,
					fmt.Sprintf("property %q is not a valid pattern", PropFilename), err)
				return
			}
			f.pattern = re
		case KindFilenameGlob:
			if f.glob, f.err = f.require(PropGlob); f.err != nil {
				return
			}
			if !doublestar.ValidatePattern(f.glob) {
				f.err = ir.NewFilterError(ir.CodeInvalidProperty, f.name,
					fmt.Sprintf("property %q is not a valid glob", PropGlob), nil)
			}
		}
	})
	return f.err
}

func (f *Filter) require(key string) (string, error) {
	v, ok := f.props[key]
	if !ok || v == "" {
		return "", ir.NewFilterError(ir.CodeMissingProperty, f.name,
			fmt.Sprintf("property %q is required", key), nil)
	}
	return v, nil
}

// Accept reports whether bs is selected by the filter.
func (f *Filter) Accept(ctx context.Context, lookup BundleLookup, bs repo.Bitstream) (bool, error) {
	if err := f.resolve(); err != nil {
		return false, err
	}

	switch f.kind {
	case KindFilenamePattern:
		return f.pattern.MatchString(bs.Name), nil
	case KindFilenameGlob:
		return doublestar.Match(f.glob, bs.Name)
	}

	bundles, err := lookup.BundlesOf(ctx, bs.ID)
	if err != nil {
		return false, ir.NewFilterError(ir.CodeLookupFailed, f.name,
			fmt.Sprintf("bundles of bitstream %d", bs.ID), err)
	}

	for _, b := range bundles {
		switch f.kind {
		case KindBundleName:
			if b.Name == f.bundle {
				return true, nil
			}
		case KindBundleSet:
			if slices.Contains(f.fixed, b.Name) {
				return true, nil
			}
		}
	}
	return false, nil
}
