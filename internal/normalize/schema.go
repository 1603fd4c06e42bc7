package normalize

import "github.com/cisec/eflp/pkg/types"

func field(typ string) types.FieldMapping {
	return types.FieldMapping{Type: typ}
}

// SchemaDescriptor describes how a downstream index should type every Record
// field. counters names the vendor's numeric allow-list, typed as long under
// "counters".
func SchemaDescriptor(counters []string) types.MappingDescriptor {
	enabled := true
	props := map[string]types.FieldMapping{
		"timestamp":     field(types.FieldDate),
		"severity":      field(types.FieldKeyword),
		"severity_rank": field(types.FieldInteger),
		"vendor":        field(types.FieldKeyword),
		"host":          field(types.FieldKeyword),
		"src_ip":        field(types.FieldIP),
		"dst_ip":        field(types.FieldIP),
		"src_port":      field(types.FieldInteger),
		"dst_port":      field(types.FieldInteger),
		"protocol":      field(types.FieldKeyword),
		"action":        field(types.FieldKeyword),
		"message":       field(types.FieldText),
		"network_type":  field(types.FieldKeyword),
		"event":         field(types.FieldKeyword),
		"raw_fields":    {Type: types.FieldObject, Enabled: &enabled},
	}

	if len(counters) > 0 {
		c := types.FieldMapping{
			Type:       types.FieldObject,
			Properties: make(map[string]types.FieldMapping, len(counters)),
		}
		for _, name := range counters {
			c.Properties[name] = field(types.FieldLong)
		}
		props["counters"] = c
	}

	return types.MappingDescriptor{Mappings: types.Mappings{Properties: props}}
}
