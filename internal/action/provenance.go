package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/repo"
)

const provenanceLanguage = "en"

// appendProvenance adds one dc.description.provenance note to the item.
func appendProvenance(ctx context.Context, env Env, item repo.Item, note string) error {
	f := ir.MetadataField{
		Schema:    ir.FieldProvenance.Schema,
		Element:   ir.FieldProvenance.Element,
		Qualifier: ir.FieldProvenance.Qualifier,
		Language:  provenanceLanguage,
		Value:     note,
	}
	if err := env.Session.AddMetadata(ctx, item, f); err != nil {
		return fmt.Errorf("provenance: %w", err)
	}
	return nil
}

func stamp(env Env) string {
	by := env.EPerson
	if by == "" {
		by = "itemupdate"
	}
	return fmt.Sprintf("by %s on %s", by, env.Now().UTC().Format(time.RFC3339))
}

func describeBitstream(bs repo.Bitstream) string {
	return fmt.Sprintf("%s: %d bytes, checksum: %s", bs.Name, bs.Size, bs.Checksum)
}

func addedNote(env Env, added []repo.Bitstream) string {
	parts := make([]string, len(added))
	for i, bs := range added {
		parts[i] = describeBitstream(bs)
	}
	return fmt.Sprintf("Bitstreams added %s. No. of bitstreams: %d. %s",
		stamp(env), len(added), strings.Join(parts, "; "))
}

func deletedNote(env Env, bs repo.Bitstream) string {
	return fmt.Sprintf("Bitstream deleted %s. %s", stamp(env), describeBitstream(bs))
}

func filteredNote(env Env, filterName string, removed []repo.Bitstream) string {
	parts := make([]string, len(removed))
	for i, bs := range removed {
		parts[i] = describeBitstream(bs)
	}
	return fmt.Sprintf("Bitstreams deleted by filter %s %s. No. of bitstreams: %d. %s",
		filterName, stamp(env), len(removed), strings.Join(parts, "; "))
}
