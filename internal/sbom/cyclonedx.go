package sbom

import (
	"io"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"
)

// WriteCycloneDX encodes doc as a CycloneDX JSON BOM. Scan results are
// attached as metadata properties.
func WriteCycloneDX(w io.Writer, doc Document) error {
	bom := cdx.NewBOM()
	bom.SerialNumber = "urn:uuid:" + uuid.NewString()

	inv := doc.Inventory
	rootRef := "root:" + inv.Name
	props := make([]cdx.Property, 0, 16)
	for _, a := range scanAnnotations(doc.Result) {
		props = append(props, cdx.Property{Name: a.Name, Value: a.Value})
	}
	bom.Metadata = &cdx.Metadata{
		Timestamp: doc.Created.Format(time.RFC3339),
		Tools: &cdx.ToolsChoice{Components: &[]cdx.Component{{
			Type:    cdx.ComponentTypeApplication,
			Name:    "cloakscan",
			Version: doc.ToolVersion,
		}}},
		Component: &cdx.Component{
			BOMRef:  rootRef,
			Type:    cdx.ComponentTypeApplication,
			Name:    inv.Name,
			Version: inv.Version,
		},
		Properties: &props,
	}

	comps := make([]cdx.Component, 0, len(inv.Components))
	direct := make([]string, 0, len(inv.Components))
	for _, c := range inv.Components {
		cp := []cdx.Property{
			{Name: "cloakscan:manifest", Value: c.Manifest},
			{Name: "cloakscan:ecosystem", Value: c.Ecosystem},
		}
		scope := cdx.ScopeRequired
		if c.Dev {
			scope = cdx.ScopeOptional
			cp = append(cp, cdx.Property{Name: "cloakscan:dev", Value: "true"})
		}
		if !c.Direct {
			cp = append(cp, cdx.Property{Name: "cloakscan:indirect", Value: "true"})
		}
		comps = append(comps, cdx.Component{
			BOMRef:     c.Ref(),
			Type:       cdx.ComponentTypeLibrary,
			Name:       c.Name,
			Version:    c.Version,
			PackageURL: c.PURL(),
			Scope:      scope,
			Properties: &cp,
		})
		if c.Direct {
			direct = append(direct, c.Ref())
		}
	}
	bom.Components = &comps
	bom.Dependencies = &[]cdx.Dependency{{Ref: rootRef, Dependencies: &direct}}

	return cdx.NewBOMEncoder(w, cdx.BOMFileFormatJSON).SetPretty(true).Encode(bom)
}
