package diff

import (
	"bytes"
	"fmt"

	"github.com/gonvenience/ytbx"
	"github.com/homeport/dyff/pkg/dyff"
	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/wayneeseguin/convergent/pkg/tree"
	"github.com/wayneeseguin/convergent/pkg/wire"
)

// Explain renders a human-readable report of the differences between a and
// b, in the style dyff uses for YAML documents. It is a diagnostic aid for
// operators inspecting a broadcast or investigating a BadHash report, not
// part of the replication path itself (Compute/Apply never call it).
func Explain(a, b tree.Value) (string, error) {
	aBytes, err := wire.Encode(a)
	if err != nil {
		return "", fmt.Errorf("encoding left-hand value: %w", err)
	}
	bBytes, err := wire.Encode(b)
	if err != nil {
		return "", fmt.Errorf("encoding right-hand value: %w", err)
	}

	aDocs, err := ytbx.LoadDocuments(aBytes)
	if err != nil {
		return "", fmt.Errorf("parsing left-hand value: %w", err)
	}
	bDocs, err := ytbx.LoadDocuments(bBytes)
	if err != nil {
		return "", fmt.Errorf("parsing right-hand value: %w", err)
	}

	from := ytbx.InputFile{Location: "before", Documents: aDocs}
	to := ytbx.InputFile{Location: "after", Documents: bDocs}

	report, err := dyff.CompareInputFiles(from, to)
	if err != nil {
		return "", fmt.Errorf("comparing values: %w", err)
	}

	var buf bytes.Buffer
	human := &dyff.HumanReport{
		Report:     report,
		NoTableStyle: true,
	}
	if err := human.WriteReport(&buf); err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	return buf.String(), nil
}

// ExplainLeaf renders a textual diff between two leaf string values, for
// logging exactly what changed in a scalar configuration field without the
// surrounding tree context.
func ExplainLeaf(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	return dmp.DiffPrettyText(diffs)
}
