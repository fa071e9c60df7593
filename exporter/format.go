package main

import (
	"encoding/json"

	"github.com/lutonsalah/jummah/schema"
	"github.com/protocolbuffers/txtpbfmt/parser"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/types/known/structpb"
)

func marshalJSON(idx *schema.MosqueIndex, pretty bool, indent string) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(idx, "", indent)
	}
	return json.Marshal(idx)
}

// marshalTextPB encodes the index as a google.protobuf.Struct in text format.
func marshalTextPB(idx *schema.MosqueIndex, pretty bool) ([]byte, error) {
	s, err := indexStruct(idx)
	if err != nil {
		return nil, err
	}
	buf, err := prototext.MarshalOptions{
		Multiline:    pretty,
		AllowPartial: false,
		EmitASCII:    !pretty,
	}.Marshal(s)
	if err != nil {
		return nil, err
	}
	if pretty {
		// prototext output is deliberately unstable, so normalize it
		return parser.Format(buf)
	}
	return buf, nil
}

func indexStruct(idx *schema.MosqueIndex) (*structpb.Struct, error) {
	mosques := make([]any, len(idx.Mosques))
	for i, m := range idx.Mosques {
		schedule := make([]any, len(m.JummahSchedule))
		for j, e := range m.JummahSchedule {
			times := make([]any, len(e.Times))
			for k, t := range e.Times {
				times[k] = t
			}
			schedule[j] = map[string]any{
				"date":  e.Date,
				"times": times,
			}
		}
		mosques[i] = map[string]any{
			"name":           m.Name,
			"slug":           m.Slug,
			"dataFile":       m.DataFile,
			"hasData":        m.HasData,
			"jummahSchedule": schedule,
		}
	}
	return structpb.NewStruct(map[string]any{
		"mosques":     mosques,
		"lastUpdated": idx.LastUpdated,
	})
}
