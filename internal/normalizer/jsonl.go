package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"oc-search-go/internal/schema"
	"oc-search-go/pkg/log"
)

// MachineTranslatedField lists the companions filled from automated
// translations.
const MachineTranslatedField = "machine_translated_fields"

// Language keys of bilingual sub-objects. The "-t-" forms are machine
// translations.
var (
	englishKeys = []string{"en", "en-t-fr"}
	frenchKeys  = []string{"fr", "fr-t-en"}
)

// ignoredJSONFields are package attributes that are never indexed.
var ignoredJSONFields = map[string]bool{
	"creator_user_id": true, "groups": true, "isopen": true, "license_title": true, "license_url": true,
	"notes": true, "num_resources": true, "num_tags": true, "private": true, "relationships_as_object": true,
	"relationships_as_subject": true, "revision_id": true, "schema": true, "state": true, "tags": true,
	"title": true, "validation_options": true, "validation_status": true, "validation_timestamp": true,
	"version": true,
}

// resourceFields are the per-resource attributes collected into
// resource_<name> lists, one element per resource.
var resourceFields = []string{
	"character_set", "data_quality", "date_published", "format", "language",
	"related_relationship", "related_type", "resource_type", "size", "url",
}

// ParseJSONLine decodes one JSON-lines record and flattens it.
func ParseJSONLine(line []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode json line: %w", err)
	}
	return Flatten(obj), nil
}

// Flatten maps a nested package object onto flat fields: bilingual
// sub-objects become <field>_en / <field>_fr, the organization becomes
// owner_org and resources become resource_<name> lists.
func Flatten(obj map[string]interface{}) Record {
	rec := Record{}
	var translated []string
	for key, raw := range obj {
		switch {
		case ignoredJSONFields[key], key == "owner_org":
			// owner_org at the root is an internal uuid; the organization name wins
		case key == "organization":
			if org, ok := raw.(map[string]interface{}); ok {
				rec["owner_org"] = toString(org["name"])
			}
		case key == "type":
			rec["dataset_type"] = toString(raw)
		case key == "resources":
			if list, ok := raw.([]interface{}); ok {
				flattenResources(list, rec)
			}
		default:
			translated = append(translated, flattenValue(key, raw, rec)...)
		}
	}
	if len(translated) == 0 {
		translated = []string{schema.UnknownValue}
	}
	sort.Strings(translated)
	rec[MachineTranslatedField] = translated
	return rec
}

// flattenValue writes key into rec and returns the companions that came from
// machine translation.
func flattenValue(key string, raw interface{}, rec Record) []string {
	switch v := raw.(type) {
	case map[string]interface{}:
		if isBilingual(v) {
			return setBilingual(key, v, rec)
		}
		for sub, sv := range v {
			rec[key+"_"+sub] = toString(sv)
		}
	case []interface{}:
		if lists, ok := bilingualLists(v); ok {
			rec[key+"_en"] = lists[0]
			rec[key+"_fr"] = lists[1]
			return nil
		}
		rec[key] = toList(v, ",")
	default:
		rec[key] = toString(v)
	}
	return nil
}

func isBilingual(v map[string]interface{}) bool {
	for _, k := range append(englishKeys, frenchKeys...) {
		if _, ok := v[k]; ok {
			return true
		}
	}
	return false
}

func setBilingual(key string, v map[string]interface{}, rec Record) []string {
	var translated []string
	for _, lang := range []struct {
		suffix string
		keys   []string
	}{{"_en", englishKeys}, {"_fr", frenchKeys}} {
		target := key + lang.suffix
		rec[target] = schema.UnknownValue
		for i, k := range lang.keys {
			val, ok := v[k]
			if !ok {
				continue
			}
			switch t := val.(type) {
			case string:
				rec[target] = t
			case []interface{}:
				rec[target] = toList(t, ",")
			default:
				rec[target] = toString(t)
				log.Warnw("[Normalizer] unusual bilingual value", "field", target, "value", rec[target])
			}
			if i > 0 {
				translated = append(translated, target)
			}
			break
		}
	}
	return translated
}

// bilingualLists collects nested bilingual values from a list of objects,
// such as credits carrying a bilingual credit_name.
func bilingualLists(list []interface{}) ([2][]string, bool) {
	var out [2][]string
	found := false
	for _, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return out, false
		}
		for _, sv := range obj {
			sub, ok := sv.(map[string]interface{})
			if !ok || !isBilingual(sub) {
				continue
			}
			found = true
			if v := firstOf(sub, englishKeys); v != "" {
				out[0] = append(out[0], v)
			}
			if v := firstOf(sub, frenchKeys); v != "" {
				out[1] = append(out[1], v)
			}
		}
	}
	out[0], out[1] = orUnknown(out[0]), orUnknown(out[1])
	return out, found
}

func firstOf(v map[string]interface{}, keys []string) string {
	for _, k := range keys {
		if s, ok := v[k]; ok {
			return toString(s)
		}
	}
	return ""
}

func flattenResources(resources []interface{}, rec Record) {
	lists := map[string][]string{}
	var names [2][]string
	var formats []string
	seenFormat := map[string]bool{}
	datastore := false

	for _, item := range resources {
		res, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		for _, field := range resourceFields {
			target := resourceKey(field)
			val, ok := res[field]
			if !ok {
				lists[target] = append(lists[target], schema.UnknownValue)
				continue
			}
			if list, isList := val.([]interface{}); isList {
				if len(list) == 0 {
					lists[target] = append(lists[target], schema.UnknownValue)
				} else {
					lists[target] = append(lists[target], toString(list))
				}
			} else {
				lists[target] = append(lists[target], toString(val))
			}
			if field == "format" {
				if f := toString(val); !seenFormat[f] {
					seenFormat[f] = true
					formats = append(formats, f)
				}
			}
		}
		if nt, ok := res["name_translated"].(map[string]interface{}); ok {
			if v := firstOf(nt, englishKeys); v != "" {
				names[0] = append(names[0], v)
			}
			if v := firstOf(nt, frenchKeys); v != "" {
				names[1] = append(names[1], v)
			}
		}
		if active, ok := res["datastore_active"].(bool); ok && active {
			datastore = true
		}
	}

	for k, v := range lists {
		rec[k] = v
	}
	rec["resource_name_translated_en"] = orUnknown(names[0])
	rec["resource_name_translated_fr"] = orUnknown(names[1])
	if formats == nil {
		formats = []string{}
	}
	rec["formats"] = formats
	rec["datastore_enabled"] = "False"
	if datastore {
		rec["datastore_enabled"] = "True"
	}
}

func resourceKey(field string) string {
	if field == "resource_type" {
		return field
	}
	return "resource_" + field
}

func orUnknown(values []string) []string {
	if len(values) == 0 {
		return []string{schema.UnknownValue}
	}
	return values
}
