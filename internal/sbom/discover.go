// Package sbom builds software bills of materials for a scanned tree and
// annotates them with the redacted scan summary.
package sbom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/mod/modfile"

	"github.com/cloakscan/cloakscan/internal/engine"
	"github.com/cloakscan/cloakscan/internal/logger"
)

// Ecosystems of discovered components.
const (
	EcosystemGo  = "golang"
	EcosystemNPM = "npm"
)

// Component is one dependency declared by a manifest in the tree.
type Component struct {
	Name      string
	Version   string
	Ecosystem string
	Manifest  string // slash-separated path of the declaring manifest
	Direct    bool
	Dev       bool
}

// PURL returns the package URL of c.
func (c Component) PURL() string {
	name := c.Name
	if c.Ecosystem == EcosystemNPM && strings.HasPrefix(name, "@") {
		name = "%40" + strings.TrimPrefix(name, "@")
	}
	v := c.Version
	if c.Ecosystem == EcosystemNPM {
		v = strings.TrimLeft(v, "^~=v ")
	}
	if v == "" {
		return fmt.Sprintf("pkg:%s/%s", c.Ecosystem, name)
	}
	return fmt.Sprintf("pkg:%s/%s@%s", c.Ecosystem, name, url.PathEscape(v))
}

// Ref is a stable identifier of c within one document.
func (c Component) Ref() string { return c.PURL() }

// Inventory is the result of manifest discovery.
type Inventory struct {
	// Name of the root project: the root go.mod module path or package.json
	// name, else the base name of the root directory.
	Name       string
	Version    string
	Components []Component
	Manifests  []string
}

var manifestNames = map[string]bool{"go.mod": true, "package.json": true}

// Discover walks root with the default excludes and reads every go.mod and
// package.json it finds. Unparsable manifests are logged and skipped.
func Discover(ctx context.Context, root string, log zerolog.Logger) (Inventory, error) {
	log = logger.Component(log, "sbom")
	abs, err := filepath.Abs(root)
	if err != nil {
		return Inventory{}, err
	}
	inv := Inventory{Name: filepath.Base(abs)}

	var manifests []engine.FileDescriptor
	cfg := engine.Config{Root: root, DefaultExcludes: true, Include: []string{"go.mod", "package.json"}, Logger: log}
	err = engine.Walk(ctx, cfg, func(fd engine.FileDescriptor) error {
		if manifestNames[path.Base(fd.RelPath)] {
			manifests = append(manifests, fd)
		}
		return nil
	}, nil)
	if err != nil {
		return inv, fmt.Errorf("discover manifests: %w", err)
	}

	seen := map[string]bool{}
	for _, fd := range manifests {
		data, err := os.ReadFile(fd.Path)
		if err != nil {
			log.Warn().Err(err).Str("manifest", fd.RelPath).Msg("unreadable manifest")
			continue
		}
		var (
			name, version string
			comps         []Component
		)
		switch path.Base(fd.RelPath) {
		case "go.mod":
			name, comps, err = parseGoMod(fd.RelPath, data)
		case "package.json":
			name, version, comps, err = parsePackageJSON(fd.RelPath, data)
		}
		if err != nil {
			log.Warn().Err(err).Str("manifest", fd.RelPath).Msg("skipping manifest")
			continue
		}
		inv.Manifests = append(inv.Manifests, fd.RelPath)
		if path.Dir(fd.RelPath) == "." && name != "" {
			inv.Name = name
			if version != "" {
				inv.Version = version
			}
		}
		for _, c := range comps {
			key := c.Ecosystem + "|" + c.Name + "|" + c.Version
			if seen[key] {
				continue
			}
			seen[key] = true
			inv.Components = append(inv.Components, c)
		}
	}

	sort.Strings(inv.Manifests)
	sort.Slice(inv.Components, func(i, j int) bool {
		a, b := inv.Components[i], inv.Components[j]
		if a.Ecosystem != b.Ecosystem {
			return a.Ecosystem < b.Ecosystem
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Version < b.Version
	})
	return inv, nil
}

func parseGoMod(rel string, data []byte) (string, []Component, error) {
	mf, err := modfile.ParseLax(rel, data, nil)
	if err != nil {
		return "", nil, err
	}
	var name string
	if mf.Module != nil {
		name = mf.Module.Mod.Path
	}
	comps := make([]Component, 0, len(mf.Require))
	for _, r := range mf.Require {
		comps = append(comps, Component{
			Name:      r.Mod.Path,
			Version:   r.Mod.Version,
			Ecosystem: EcosystemGo,
			Manifest:  rel,
			Direct:    !r.Indirect,
		})
	}
	return name, comps, nil
}

type packageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func parsePackageJSON(rel string, data []byte) (string, string, []Component, error) {
	var pj packageJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return "", "", nil, fmt.Errorf("parse %s: %w", rel, err)
	}
	comps := make([]Component, 0, len(pj.Dependencies)+len(pj.DevDependencies))
	for n, v := range pj.Dependencies {
		comps = append(comps, Component{Name: n, Version: v, Ecosystem: EcosystemNPM, Manifest: rel, Direct: true})
	}
	for n, v := range pj.DevDependencies {
		comps = append(comps, Component{Name: n, Version: v, Ecosystem: EcosystemNPM, Manifest: rel, Direct: true, Dev: true})
	}
	return pj.Name, pj.Version, comps, nil
}
