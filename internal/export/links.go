package export

import (
	"time"

	"github.com/google/uuid"

	"github.com/biobroker/biobroker/internal/crawler"
	"github.com/biobroker/biobroker/internal/jsondoc"
)

// LinksResource synthesizes the bundle's links document from the coalesced
// process links of an experiment graph. The document receives a fresh UUID;
// its version is the given instant in the registry's dcpVersion format.
func LinksResource(processLinks []*crawler.Link, now time.Time) MetadataResource {
	links := make([]any, 0, len(processLinks))
	for _, link := range processLinks {
		entry := jsondoc.New()
		entry.Set("process", link.ProcessUUID)
		entry.Set("inputs", stringsToAny(link.Inputs))
		entry.Set("input_type", link.InputType)
		entry.Set("outputs", stringsToAny(link.Outputs))
		entry.Set("output_type", link.OutputType)

		protocols := make([]any, 0, len(link.Protocols))
		for _, protocol := range link.Protocols {
			ref := jsondoc.New()
			ref.Set("protocol_type", protocol.ProtocolType)
			ref.Set("protocol_id", protocol.ProtocolID)
			protocols = append(protocols, ref)
		}
		entry.Set("protocols", protocols)
		links = append(links, entry)
	}

	content := jsondoc.New()
	content.Set("schema_type", "link_bundle")
	content.Set("links", links)

	return MetadataResource{
		MetadataType: "links",
		UUID:         uuid.NewString(),
		DCPVersion:   now.UTC().Format("2006-01-02T15:04:05.000Z"),
		Content:      content,
	}
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
