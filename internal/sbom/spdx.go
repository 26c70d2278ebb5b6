package sbom

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/google/uuid"
)

const spdxVersion = "SPDX-2.3"

type spdxDocument struct {
	SPDXVersion       string             `json:"spdxVersion"`
	DataLicense       string             `json:"dataLicense"`
	SPDXID            string             `json:"SPDXID"`
	Name              string             `json:"name"`
	DocumentNamespace string             `json:"documentNamespace"`
	CreationInfo      spdxCreationInfo   `json:"creationInfo"`
	Packages          []spdxPackage      `json:"packages"`
	Relationships     []spdxRelationship `json:"relationships"`
}

type spdxCreationInfo struct {
	Created  string   `json:"created"`
	Creators []string `json:"creators"`
	Comment  string   `json:"comment,omitempty"`
}

type spdxPackage struct {
	SPDXID           string           `json:"SPDXID"`
	Name             string           `json:"name"`
	VersionInfo      string           `json:"versionInfo,omitempty"`
	DownloadLocation string           `json:"downloadLocation"`
	FilesAnalyzed    bool             `json:"filesAnalyzed"`
	LicenseConcluded string           `json:"licenseConcluded"`
	LicenseDeclared  string           `json:"licenseDeclared"`
	CopyrightText    string           `json:"copyrightText"`
	PrimaryPurpose   string           `json:"primaryPackagePurpose,omitempty"`
	ExternalRefs     []spdxExternal   `json:"externalRefs,omitempty"`
	Annotations      []spdxAnnotation `json:"annotations,omitempty"`
	Comment          string           `json:"comment,omitempty"`
}

type spdxExternal struct {
	Category string `json:"referenceCategory"`
	Type     string `json:"referenceType"`
	Locator  string `json:"referenceLocator"`
}

type spdxAnnotation struct {
	Date      string `json:"annotationDate"`
	Type      string `json:"annotationType"`
	Annotator string `json:"annotator"`
	Comment   string `json:"comment"`
}

type spdxRelationship struct {
	Element string `json:"spdxElementId"`
	Type    string `json:"relationshipType"`
	Related string `json:"relatedSpdxElement"`
}

var reSPDXID = regexp.MustCompile(`[^A-Za-z0-9.-]+`)

func spdxID(prefix string, i int, name string) string {
	return fmt.Sprintf("SPDXRef-%s-%d-%s", prefix, i, reSPDXID.ReplaceAllString(name, "-"))
}

// WriteSPDX encodes doc as an SPDX 2.3 JSON document. Scan results are
// attached as REVIEW annotations on the root package.
func WriteSPDX(w io.Writer, doc Document) error {
	inv := doc.Inventory
	created := doc.Created.UTC().Format(time.RFC3339)
	tool := "Tool: cloakscan-" + doc.ToolVersion

	root := spdxPackage{
		SPDXID:           "SPDXRef-Package-root",
		Name:             inv.Name,
		VersionInfo:      inv.Version,
		DownloadLocation: "NOASSERTION",
		LicenseConcluded: "NOASSERTION",
		LicenseDeclared:  "NOASSERTION",
		CopyrightText:    "NOASSERTION",
		PrimaryPurpose:   "APPLICATION",
	}
	for _, a := range scanAnnotations(doc.Result) {
		root.Annotations = append(root.Annotations, spdxAnnotation{
			Date:      created,
			Type:      "REVIEW",
			Annotator: tool,
			Comment:   a.Name + "=" + a.Value,
		})
	}

	out := spdxDocument{
		SPDXVersion:       spdxVersion,
		DataLicense:       "CC0-1.0",
		SPDXID:            "SPDXRef-DOCUMENT",
		Name:              inv.Name,
		DocumentNamespace: "https://cloakscan.dev/spdxdocs/" + reSPDXID.ReplaceAllString(inv.Name, "-") + "-" + uuid.NewString(),
		CreationInfo: spdxCreationInfo{
			Created:  created,
			Creators: []string{tool},
		},
		Packages: []spdxPackage{root},
		Relationships: []spdxRelationship{
			{Element: "SPDXRef-DOCUMENT", Type: "DESCRIBES", Related: root.SPDXID},
		},
	}
	for i, c := range inv.Components {
		p := spdxPackage{
			SPDXID:           spdxID("Package", i+1, c.Name),
			Name:             c.Name,
			VersionInfo:      c.Version,
			DownloadLocation: "NOASSERTION",
			LicenseConcluded: "NOASSERTION",
			LicenseDeclared:  "NOASSERTION",
			CopyrightText:    "NOASSERTION",
			PrimaryPurpose:   "LIBRARY",
			ExternalRefs:     []spdxExternal{{Category: "PACKAGE-MANAGER", Type: "purl", Locator: c.PURL()}},
			Comment:          "declared in " + c.Manifest,
		}
		out.Packages = append(out.Packages, p)
		rel := "DEPENDS_ON"
		if c.Dev {
			rel = "DEV_DEPENDENCY_OF"
			out.Relationships = append(out.Relationships, spdxRelationship{Element: p.SPDXID, Type: rel, Related: root.SPDXID})
			continue
		}
		out.Relationships = append(out.Relationships, spdxRelationship{Element: root.SPDXID, Type: rel, Related: p.SPDXID})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
